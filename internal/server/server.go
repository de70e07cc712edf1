// Package server is the engine's operations HTTP surface: health, metrics and
// a read-only view of the audit log. It serves operators and probes, not the
// web application.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/boldengine/internal/server/handler"
	"github.com/alanyoungcy/boldengine/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port   int
	APIKey string // guards /api/audit; empty disables authentication
}

// Handlers aggregates the HTTP handlers the server registers. Audit and
// Metrics may be nil.
type Handlers struct {
	Health  *handler.HealthHandler
	Audit   *handler.AuditHandler
	Metrics http.Handler
}

// Server is the ops HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Audit != nil {
		mux.Handle("GET /api/audit", middleware.Auth(cfg.APIKey)(http.HandlerFunc(handlers.Audit.List)))
	}
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           middleware.Logging(logger)(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
