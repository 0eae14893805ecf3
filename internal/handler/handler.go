// Package handler содержит HTTP-обработчики API сервиса учёта грузоперевозок.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/cargodesk/internal/middleware"
	"github.com/mmeshcher/cargodesk/internal/model"
	"github.com/mmeshcher/cargodesk/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Authenticate(ctx context.Context, username, password string) (*model.Account, error)
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	ListAccounts(ctx context.Context, role *model.Role) ([]model.Account, error)
	CreateAccount(ctx context.Context, actor model.Actor, in model.NewAccount) (*model.Account, error)
	DeleteAccount(ctx context.Context, actor model.Actor, id int64) error
	SetAccountActive(ctx context.Context, actor model.Actor, id int64, active bool) (*model.Account, error)
	ResetPassword(ctx context.Context, actor model.Actor, id int64, password string) (*model.Account, error)
	UpdateProfile(ctx context.Context, actor model.Actor, id int64, patch model.ProfilePatch) (*model.Account, error)

	GetPricingRule(ctx context.Context) (*model.PricingRule, error)
	SetPricingRule(ctx context.Context, baseCost, costPerKg decimal.Decimal) (*model.PricingRule, error)

	CreateCargo(ctx context.Context, actor *model.Actor, in model.NewCargo) (*model.Cargo, error)
	FindCargo(ctx context.Context, trackingNumber string) (*model.Cargo, error)
	ApplyCargoAction(ctx context.Context, actor *model.Actor, trackingNumber string, action model.CargoAction) (*model.Cargo, error)

	DashboardStats(ctx context.Context) (*model.DashboardStats, error)
	QueryActivityLog(ctx context.Context, q model.ActivityQuery, limit int) ([]model.ActivityLogEntry, error)
	WeeklySummary(ctx context.Context, from, to *time.Time) (*model.WeeklySummary, error)
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	loc            *time.Location
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// loc задаёт часовой пояс, в котором разбираются календарные даты из запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		loc:            loc,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errMalformedBody = errors.New("malformed request body")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorKind(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, errMalformedBody):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrPermission):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, service.ErrAccountDeactivated):
		return http.StatusForbidden, "account_deactivated"
	}
	return http.StatusInternalServerError, "internal"
}

// writeError отвечает ошибкой с машиночитаемым видом. Ошибки хранилища
// логируются, а клиент получает обезличенное сообщение.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, kind := errorKind(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" error",
			zap.Error(err),
			zap.String("requestId", middleware.RequestIDFromContext(r.Context())),
		)
		message = http.StatusText(http.StatusInternalServerError)
	}
	writeJSON(w, status, errorResponse{Error: kind, Message: message})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid account id %q", errMalformedBody, chi.URLParam(r, "id"))
	}
	return id, nil
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Message: "authentication required"})
	}
	return actor, ok
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login проверяет учётные данные и выдаёт cookie сессии.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "login", err)
		return
	}

	account, err := h.service.Authenticate(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		h.writeError(w, r, "login", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, model.Actor{
		ID:       account.ID,
		Username: account.Username,
		Role:     account.Role,
	})
	writeJSON(w, http.StatusOK, account)
}

// Logout удаляет cookie сессии.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me возвращает учётную запись текущего пользователя.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	account, err := h.service.GetAccount(r.Context(), actor.ID)
	if err != nil {
		h.writeError(w, r, "get current account", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// Health отвечает на проверку живости.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
