package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/vaultsync/internal/syncer"
	"github.com/iudanet/vaultsync/pkg/api"
)

// SyncService определяет интерфейс принимающей стороны sync-протокола
type SyncService interface {
	HandleNegotiate(ctx context.Context, peerID string, req api.NegotiateRequest) (*api.NegotiateResponse, error)
	HandlePull(ctx context.Context, peerID, sessionID, vaultID string, cursor int64, limit int) (*api.ChangesResponse, error)
	HandlePush(ctx context.Context, peerID string, req api.PushRequest) (*api.PushResponse, error)
}

// SyncHandler handles synchronization requests
type SyncHandler struct {
	logger  *slog.Logger
	service SyncService
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(logger *slog.Logger, service SyncService) *SyncHandler {
	return &SyncHandler{
		logger:  logger,
		service: service,
	}
}

// Negotiate обрабатывает POST /api/v1/sync/negotiate
func (h *SyncHandler) Negotiate(w http.ResponseWriter, r *http.Request) {
	peerID, ok := GetPeerID(r.Context())
	if !ok {
		h.logger.Error("peer id not found in context")
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req api.NegotiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode negotiate request", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SchemaVersion != api.SchemaVersion {
		writeError(w, h.logger, http.StatusBadRequest, "unsupported schema version")
		return
	}

	resp, err := h.service.HandleNegotiate(r.Context(), peerID, req)
	if err != nil {
		h.logger.Error("negotiate failed", "error", err, "peer_id", peerID)
		writeError(w, h.logger, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}

// Changes обрабатывает GET и POST запросы /api/v1/sync/changes
func (h *SyncHandler) Changes(w http.ResponseWriter, r *http.Request) {
	peerID, ok := GetPeerID(r.Context())
	if !ok {
		h.logger.Error("peer id not found in context")
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handlePull(w, r, peerID)
	case http.MethodPost:
		h.handlePush(w, r, peerID)
	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handlePull обрабатывает GET /api/v1/sync/changes?session_id&vault_id&cursor&limit
func (h *SyncHandler) handlePull(w http.ResponseWriter, r *http.Request, peerID string) {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	vaultID := q.Get("vault_id")
	if sessionID == "" || vaultID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "session_id and vault_id are required")
		return
	}

	var cursor int64
	if s := q.Get("cursor"); s != "" {
		var err error
		cursor, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "invalid cursor parameter")
			return
		}
	}
	var limit int
	if s := q.Get("limit"); s != "" {
		var err error
		limit, err = strconv.Atoi(s)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "invalid limit parameter")
			return
		}
	}

	resp, err := h.service.HandlePull(r.Context(), peerID, sessionID, vaultID, cursor, limit)
	if err != nil {
		h.writeSyncError(w, err, peerID)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}

// handlePush обрабатывает POST /api/v1/sync/changes
func (h *SyncHandler) handlePush(w http.ResponseWriter, r *http.Request, peerID string) {
	var req api.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode push request", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SchemaVersion != api.SchemaVersion {
		writeError(w, h.logger, http.StatusBadRequest, "unsupported schema version")
		return
	}

	resp, err := h.service.HandlePush(r.Context(), peerID, req)
	if err != nil {
		h.writeSyncError(w, err, peerID)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}

// writeSyncError переводит ошибки оркестратора в HTTP статусы.
func (h *SyncHandler) writeSyncError(w http.ResponseWriter, err error, peerID string) {
	switch {
	case errors.Is(err, syncer.ErrUnknownSession):
		writeError(w, h.logger, http.StatusConflict, err.Error())
	case errors.Is(err, syncer.ErrAuthenticity):
		h.logger.Warn("inbound records failed authenticity check", "peer_id", peerID)
		writeError(w, h.logger, http.StatusForbidden, err.Error())
	default:
		h.logger.Error("sync request failed", "error", err, "peer_id", peerID)
		writeError(w, h.logger, http.StatusInternalServerError, "internal server error")
	}
}
