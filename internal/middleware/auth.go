// Package middleware содержит HTTP middleware сервиса учёта грузоперевозок.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/cargodesk/internal/model"
)

type contextKey string

const actorKey contextKey = "actor"

const (
	authCookieName = "auth_token"
	authCookieTTL  = 12 * time.Hour
)

type session struct {
	model.Actor
	ExpiresAt int64 `json:"exp"`
}

// AuthMiddleware выполняет проверку аутентификации пользователя по подписанному cookie.
type AuthMiddleware struct {
	secretKey []byte
	now       func() time.Time
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
// Без ключа генерируется случайный, и сессии не переживают перезапуск.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
		now:       time.Now,
	}
}

// Middleware проверяет cookie авторизации и добавляет пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}

		actor, ok := a.parseCookie(cookie.Value)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid or expired session")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// SetAuthCookie устанавливает подписанный cookie сессии для пользователя.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, actor model.Actor) {
	expires := a.now().Add(authCookieTTL)

	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    a.sign(session{Actor: actor, ExpiresAt: expires.Unix()}),
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

// ClearAuthCookie удаляет cookie сессии.
func (a *AuthMiddleware) ClearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *AuthMiddleware) sign(s session) string {
	payload, _ := json.Marshal(s)
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + a.signature(encoded)
}

func (a *AuthMiddleware) signature(encoded string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(encoded))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (model.Actor, bool) {
	encoded, signature, found := strings.Cut(cookieValue, ".")
	if !found {
		return model.Actor{}, false
	}

	if !hmac.Equal([]byte(signature), []byte(a.signature(encoded))) {
		return model.Actor{}, false
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return model.Actor{}, false
	}

	var s session
	if err := json.Unmarshal(payload, &s); err != nil {
		return model.Actor{}, false
	}
	if a.now().Unix() >= s.ExpiresAt {
		return model.Actor{}, false
	}

	return s.Actor, true
}

// WithActor кладёт пользователя в контекст.
func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext извлекает пользователя из контекста запроса.
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(model.Actor)
	return actor, ok
}
