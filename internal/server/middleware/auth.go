package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/vaultsync/internal/server/handlers"
	"github.com/iudanet/vaultsync/internal/transport"
)

// AuthMiddleware создает middleware для проверки peer session token.
// Токен подписан ключом, выведенным из pairing key пары устройств: валидная
// подпись одновременно аутентифицирует peer и доказывает, что он trusted.
func AuthMiddleware(logger *slog.Logger, selfID string, lookup transport.KeyLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Missing Authorization header", "path", r.URL.Path)
				http.Error(w, "Unauthorized: missing token", http.StatusUnauthorized)
				return
			}

			// Ожидаем формат: "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("Invalid Authorization header format")
				http.Error(w, "Unauthorized: invalid token format", http.StatusUnauthorized)
				return
			}

			peerID, err := transport.VerifyToken(parts[1], selfID, lookup)
			if err != nil {
				logger.Warn("Invalid peer session token", "error", err)
				http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), handlers.PeerIDKey, peerID)

			logger.Debug("Peer authenticated", "peer_id", peerID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
