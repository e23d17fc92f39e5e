// Package core provides the API chassis for the ZipRank service.
// It creates a chi router and enforces cross-cutting concerns -- security,
// logging, observability, and error handling -- before requests reach
// domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ziprank/internal/config"
)

// MetricsCollector defines the interface for recording API telemetry.
// Implementations record request latency and count metrics to CloudWatch
// or equivalent backends.
type MetricsCollector interface {
	// RecordRequest records API request metrics including latency and count.
	RecordRequest(ctx context.Context, method, endpoint, status string, duration time.Duration)
}

// Server encapsulates all dependencies for the ZipRank API, allowing for
// easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// HealthProbes are the subsystem checks executed by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars are populated by the application entry point so that
	// domain handler packages can register routes without core importing them.
	V1RouteRegistrars []func(chi.Router)

	// Internal router
	router *chi.Mux

	// Shutdown hooks, executed in registration order.
	closers []closer
}

type closer struct {
	name string
	fn   func()
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting. It performs a "fail-fast" check on critical
// configuration.
//
// The caller is responsible for mounting routes (via MountRoutes) after
// construction. This separation allows tests to customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}

	return s, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
// This is used internally by route-mounting methods and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// RegisterCloser adds a named cleanup hook executed during Shutdown.
// Typical use: closing the database pool after in-flight requests drain.
func (s *Server) RegisterCloser(name string, fn func()) {
	s.closers = append(s.closers, closer{name: name, fn: fn})
}

// Shutdown performs a graceful termination of server resources by running
// all registered closers in order. The context is accepted for signature
// symmetry with http.Server.Shutdown; closers are synchronous.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	for _, c := range s.closers {
		s.Logger.InfoContext(ctx, "closing resource", "resource", c.name)
		c.fn()
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
