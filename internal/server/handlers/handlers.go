// Package handlers реализует HTTP-обработчики движка синхронизации.
// Все эндпоинты, кроме /api/v1/pair/confirm, требуют peer session token;
// id аутентифицированного peer кладет в контекст auth middleware.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/vaultsync/pkg/api"
)

// contextKey тип для ключей контекста
type contextKey string

// PeerIDKey ключ для хранения id аутентифицированного peer в контексте
const PeerIDKey contextKey = "peer_id"

// GetPeerID извлекает id peer из контекста запроса
func GetPeerID(ctx context.Context) (string, bool) {
	peerID, ok := ctx.Value(PeerIDKey).(string)
	return peerID, ok
}

// writeJSON сериализует ответ. Ошибку кодирования уже не вернуть клиенту,
// только залогировать.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// writeError отдает ошибку в формате api.ErrorResponse.
func writeError(w http.ResponseWriter, logger *slog.Logger, status int, msg string) {
	writeJSON(w, logger, status, api.ErrorResponse{Error: msg})
}
