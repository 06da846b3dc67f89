// Package middlewarectx содержит HTTP middleware движка кредитов.
//
// JWTMiddleware проверяет bearer-токен в заголовке Authorization и кладёт
// идентификатор пользователя в контекст запроса. RateLimitMiddleware
// ограничивает общий поток запросов к процессу.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/credit-engine/internal/http/response"
	"github.com/magabrotheeeer/credit-engine/internal/lib/jwt"
	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// UserUID ключ идентификатора пользователя в контексте.
const UserUID Key = "user_uid"

// TokenParser разбирает и проверяет JWT.
type TokenParser interface {
	ParseToken(tokenStr string) (*jwt.CustomClaims, error)
}

// UserFromContext возвращает идентификатор пользователя, положенный JWTMiddleware.
func UserFromContext(ctx context.Context) (string, bool) {
	userUID, ok := ctx.Value(UserUID).(string)
	return userUID, ok && userUID != ""
}

// WithUser кладёт идентификатор пользователя в контекст.
func WithUser(ctx context.Context, userUID string) context.Context {
	return context.WithValue(ctx, UserUID, userUID)
}

// JWTMiddleware возвращает HTTP middleware, который проверяет JWT в заголовке Authorization.
// При невалидном токене отвечает 401 Unauthorized.
func JWTMiddleware(parser TokenParser, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Warn("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := parser.ParseToken(tokenStr)
			if err != nil {
				log.Warn("invalid or expired token", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.UserUID)))
		})
	}
}
