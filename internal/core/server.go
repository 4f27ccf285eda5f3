// Package core serves the watchdog's local status surface over HTTP: health of
// the audit trail, the current health state of the monitored controller and,
// when the Prometheus backend is active, the metrics scrape endpoint.
package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"doorwatch/internal/types"
	"doorwatch/internal/watchdog"
)

// shutdownTimeout bounds graceful shutdown of the status server.
const shutdownTimeout = 5 * time.Second

// StatusSource is the read side of the watchdog.
type StatusSource interface {
	Status() watchdog.Status
	AuditHealth() (failures int, lastErr error)
}

// QueueDepth reports how many transition events await delivery.
type QueueDepth interface {
	Pending() int
}

// BreakerReporter reports the state of an outbound circuit breaker.
type BreakerReporter interface {
	BreakerState() string
}

// Server holds the dependencies of the status API. Optional fields are set
// after NewServer and before MountRoutes.
type Server struct {
	Source StatusSource
	Logger types.Logger

	Queue        QueueDepth                 // optional
	Breakers     map[string]BreakerReporter // optional, keyed by channel name
	HealthProbes []HealthProbe              // defaults to the audit probe
	Metrics      http.Handler               // optional; mounted at /metrics

	router *chi.Mux
}

// NewServer returns a Server with an empty router.
func NewServer(source StatusSource, logger types.Logger) (*Server, error) {
	if source == nil {
		return nil, fmt.Errorf("status source must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Source:       source,
		Logger:       logger,
		HealthProbes: []HealthProbe{NewAuditProbe(source)},
		router:       chi.NewRouter(),
	}, nil
}

// MountRoutes registers middleware and endpoints.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))

	s.router.Get("/health", s.HandleHealth)
	s.router.Get("/status", s.HandleStatus)
	if s.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.Metrics)
	}
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.Logger.Info("status server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.Logger.Error("status server shutdown error", "error", err)
		return fmt.Errorf("status server shutdown: %w", err)
	}
	s.Logger.Info("status server stopped")
	return nil
}

// ListenAndServe binds addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status server listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}
