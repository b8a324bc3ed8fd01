package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/meetsync/internal/server/handlers"
	"github.com/iudanet/meetsync/internal/server/storage"
)

// AuthMiddleware создает middleware для проверки JWT токена.
// Запрос без заголовка Authorization проходит как анонимный,
// решение о доступе принимает обработчик.
// Токен с отозванной или истекшей сессией отклоняется.
func AuthMiddleware(logger *slog.Logger, jwtConfig handlers.JWTConfig, sessions storage.SessionStorage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Ожидаем формат: "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				logger.WarnContext(r.Context(), "invalid Authorization header format")
				handlers.SendError(w, "invalid token format", http.StatusUnauthorized)
				return
			}

			claims, err := handlers.ValidateAccessToken(jwtConfig, parts[1])
			if err != nil {
				logger.WarnContext(r.Context(), "invalid access token", slog.Any("error", err))
				handlers.SendError(w, "invalid token", http.StatusUnauthorized)
				return
			}

			if _, err := sessions.GetSession(r.Context(), claims.ID); err != nil {
				if errors.Is(err, storage.ErrSessionNotFound) {
					logger.WarnContext(r.Context(), "session is revoked or expired", slog.Int("user_id", claims.UserID))
					handlers.SendError(w, "session expired", http.StatusUnauthorized)
					return
				}
				logger.ErrorContext(r.Context(), "failed to get session", slog.Any("error", err))
				handlers.SendError(w, "internal server error", http.StatusInternalServerError)
				return
			}

			logger.DebugContext(r.Context(), "user authenticated",
				slog.Int("user_id", claims.UserID),
				slog.String("username", claims.Username))

			next.ServeHTTP(w, r.WithContext(handlers.WithIdentity(r.Context(), claims)))
		})
	}
}
