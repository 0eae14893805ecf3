package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/mmeshcher/cargodesk/internal/model"
)

// RequireRole пропускает только пользователей с указанной ролью, остальным отвечает 403.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}
			if actor.Role != role {
				writeError(w, http.StatusForbidden, "permission_denied", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin пропускает только администраторов.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(model.RoleAdmin)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": message})
}
