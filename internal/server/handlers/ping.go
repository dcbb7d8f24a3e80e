package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/vaultsync/internal/models"
	"github.com/iudanet/vaultsync/pkg/api"
)

// PingHandler отвечает на probe от discovery peer-ов.
type PingHandler struct {
	logger   *slog.Logger
	identity *models.DeviceIdentity
}

// NewPingHandler создает handler для discovery probe.
func NewPingHandler(logger *slog.Logger, identity *models.DeviceIdentity) *PingHandler {
	return &PingHandler{
		logger:   logger,
		identity: identity,
	}
}

// Ping обрабатывает GET /api/v1/ping.
// Требует peer session token: отвечаем только устройствам, прошедшим
// pairing, чужой сканер сети не узнает о нас ничего.
func (h *PingHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, api.PingResponse{
		SchemaVersion: api.SchemaVersion,
		DeviceID:      h.identity.ID,
		DeviceName:    h.identity.Name,
	})
}
