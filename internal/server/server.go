// Package server implements the DriftSync development sync server: the
// remote authority the hosts talk to. It keeps an ordered in-memory
// record log with a server-assigned monotonic version counter, serves the
// push/pull/version endpoints and broadcasts change events to connected
// hosts over a websocket hub.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	config *Config
	server *http.Server
	hub    *Hub
	log    *SyncLog
}

func New(config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	syncLog := NewSyncLog(config.Sync.EntityTypes...)
	hub := NewHub()
	handler := SetupRoutes(config, syncLog, hub)

	return &Server{
		config: config,
		hub:    hub,
		log:    syncLog,
		server: &http.Server{
			Addr:    config.HTTP.Addr,
			Handler: handler,
		},
	}, nil
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("driftsync server start")
	defer slog.Info("driftsync server stop")

	errCh := make(chan error, 1)
	go func() {
		if err := s.runHTTPServer(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("driftsync server shutdown signal")
	if err := s.Stop(); err != nil {
		slog.Error("driftsync server shutdown error", "error", err)
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	// The signal context is already dead at this point, so the drain
	// window gets its own.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.hub.Shutdown()

	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) runHTTPServer() error {
	if s.config.HTTP.CertFile != "" && s.config.HTTP.KeyFile != "" {
		slog.Info("server start tls", "addr", s.config.HTTP.Addr, "cert", s.config.HTTP.CertFile, "key", s.config.HTTP.KeyFile)
		return s.server.ListenAndServeTLS(s.config.HTTP.CertFile, s.config.HTTP.KeyFile)
	}
	slog.Info("server start http", "addr", s.config.HTTP.Addr)
	return s.server.ListenAndServe()
}
