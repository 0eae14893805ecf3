package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	custommiddleware "github.com/mmeshcher/cargodesk/internal/middleware"
)

// RouterOption настраивает маршрутизатор.
type RouterOption func(*routerConfig)

type routerConfig struct {
	loginRate  rate.Limit
	loginBurst int
}

// WithLoginRateLimit ограничивает частоту попыток входа с одного IP.
// Нулевая частота или нулевой burst отключают ограничение.
func WithLoginRateLimit(r rate.Limit, burst int) RouterOption {
	return func(c *routerConfig) {
		c.loginRate = r
		c.loginBurst = burst
	}
}

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter(opts ...RouterOption) *chi.Mux {
	cfg := routerConfig{loginRate: rate.Limit(1), loginBurst: 5}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if cfg.loginRate > 0 && cfg.loginBurst > 0 {
					r.Use(custommiddleware.RateLimit(cfg.loginRate, cfg.loginBurst))
				}
				r.Post("/login", h.Login)
			})
			r.Post("/logout", h.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/me", h.Me)
			r.Get("/pricing", h.GetPricing)

			r.Post("/cargo", h.CreateCargo)
			r.Get("/cargo/{trackingNumber}", h.GetCargo)
			r.Post("/cargo/{trackingNumber}/actions", h.CargoAction)

			r.Patch("/users/{id}/profile", h.UpdateProfile)

			r.Route("/admin", func(r chi.Router) {
				r.Use(custommiddleware.RequireAdmin())

				r.Get("/users", h.ListUsers)
				r.Post("/users", h.CreateUser)
				r.Delete("/users/{id}", h.DeleteUser)
				r.Post("/users/{id}/activate", h.ActivateUser)
				r.Post("/users/{id}/deactivate", h.DeactivateUser)
				r.Post("/users/{id}/password", h.ResetPassword)

				r.Put("/pricing", h.SetPricing)

				r.Get("/logs", h.GetLogs)
				r.Get("/logs/weekly", h.WeeklyReport)
				r.Get("/stats", h.Stats)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: http.StatusText(http.StatusNotFound)})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed", Message: http.StatusText(http.StatusMethodNotAllowed)})
	})

	return r
}
