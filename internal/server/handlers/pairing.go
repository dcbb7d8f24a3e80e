package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/vaultsync/internal/pairing"
	"github.com/iudanet/vaultsync/pkg/api"
)

// PairingConfirmer определяет интерфейс для подтверждения pairing
type PairingConfirmer interface {
	HandleConfirm(ctx context.Context, req api.PairConfirmRequest) (*api.PairConfirmResponse, error)
}

// PairingHandler обрабатывает подтверждения pairing от сканирующей стороны.
type PairingHandler struct {
	logger *slog.Logger
	engine PairingConfirmer
}

// NewPairingHandler создает handler подтверждения pairing.
func NewPairingHandler(logger *slog.Logger, engine PairingConfirmer) *PairingHandler {
	return &PairingHandler{
		logger: logger,
		engine: engine,
	}
}

// Confirm обрабатывает POST /api/v1/pair/confirm.
// Единственный неаутентифицированный эндпоинт: доверие доказывается MAC
// внутри запроса, а не session token.
func (h *PairingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req api.PairConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode pair confirm request", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.engine.HandleConfirm(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, pairing.ErrPayload):
			status = http.StatusBadRequest
		case errors.Is(err, pairing.ErrExpired):
			status = http.StatusGone
		case errors.Is(err, pairing.ErrForged):
			status = http.StatusForbidden
		}
		writeError(w, h.logger, status, err.Error())
		return
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}
