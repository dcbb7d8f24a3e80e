// Package server собирает HTTP-поверхность устройства: эндпоинты pairing
// и синхронизации за цепочкой middleware (recovery, logging, rate limit,
// peer auth).
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/iudanet/vaultsync/internal/models"
	"github.com/iudanet/vaultsync/internal/server/handlers"
	"github.com/iudanet/vaultsync/internal/server/middleware"
	"github.com/iudanet/vaultsync/internal/transport"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second

	// pairConfirmRate лимит попыток подтверждения pairing с одного адреса
	pairConfirmRate   = 10
	pairConfirmWindow = time.Minute
)

// Config собирает зависимости HTTP-сервера.
type Config struct {
	Addr     string
	Identity *models.DeviceIdentity
	Pairing  handlers.PairingConfirmer
	Sync     handlers.SyncService
	Keys     transport.KeyLookup
	Logger   *slog.Logger
}

// Server представляет HTTP-сервер движка синхронизации.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	listenAddr string
	ready      chan struct{}
}

// New создает сервер с полной цепочкой middleware.
func New(cfg Config) *Server {
	pingHandler := handlers.NewPingHandler(cfg.Logger, cfg.Identity)
	pairingHandler := handlers.NewPairingHandler(cfg.Logger, cfg.Pairing)
	syncHandler := handlers.NewSyncHandler(cfg.Logger, cfg.Sync)

	auth := middleware.AuthMiddleware(cfg.Logger, cfg.Identity.ID, cfg.Keys)
	pairLimit := middleware.RateLimitMiddleware(pairConfirmRate, pairConfirmWindow, cfg.Logger)

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/pair/confirm", pairLimit(http.HandlerFunc(pairingHandler.Confirm)))
	mux.Handle("GET /api/v1/ping", auth(http.HandlerFunc(pingHandler.Ping)))
	mux.Handle("POST /api/v1/sync/negotiate", auth(http.HandlerFunc(syncHandler.Negotiate)))
	mux.Handle("/api/v1/sync/changes", auth(http.HandlerFunc(syncHandler.Changes)))

	handler := middleware.RecoveryMiddleware(cfg.Logger)(
		middleware.LoggingWithSkip(cfg.Logger, []string{"/api/v1/ping"})(mux),
	)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger:     cfg.Logger,
		listenAddr: cfg.Addr,
		ready:      make(chan struct{}),
	}
}

// Run слушает адрес и обслуживает запросы, пока ctx не отменен.
// Возвращает фактический адрес через Addr() после старта listener.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listenAddr = ln.Addr().String()
	close(s.ready)
	s.logger.Info("sync server listening", "addr", s.listenAddr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Ready закрывается после bind listener: Addr() с этого момента
// возвращает фактический адрес.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr возвращает адрес, на котором сервер слушает.
func (s *Server) Addr() string {
	return s.listenAddr
}
