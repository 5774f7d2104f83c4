package auth

import (
	"context"
	"net/http"

	"github.com/piata-ai/signalcore/internal/domain"
	"go.uber.org/zap"
)

type ctxKey string

const (
	CtxUserID ctxKey = "user_id"
	CtxScopes ctxKey = "user_scopes"
)

// TokenValidator — интерфейс проверки операторских токенов консоли
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			ctx := context.WithValue(r.Context(), CtxScopes, claims.Scopes)
			ctx = context.WithValue(ctx, CtxUserID, claims.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext достает ID оператора, положенный middleware.
func UserFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(CtxUserID).(string); ok {
		return id
	}
	return ""
}
