// Package core provides the API chassis for the wp-cloud service. It creates
// a chi router and enforces cross-cutting concerns -- panic recovery, request
// correlation, logging, CORS, compression -- before requests reach
// domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Rayan-Walnut/wp-cloud/internal/config"
)

// MetricsCollector defines the interface for recording API telemetry.
type MetricsCollector interface {
	// RecordRequest records API request metrics including latency and count.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a group of domain routes onto the router. Handlers
// supply registrars so that core does not import handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the chassis dependencies, allowing injection during
// testing and distinct configuration per environment.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// Registrars registers domain handler routes; populated by main before
	// MountRoutes is called.
	Registrars []RouteRegistrar

	// HealthProbes are checked by the health endpoint.
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer initializes the chassis. The caller mounts routes afterwards via
// MountRoutes; the separation lets tests customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MountRoutes registers the global middleware chain, the health endpoint and
// every domain registrar. Order matters: the recoverer is outermost so it
// catches panics from the entire chain.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(GzipMiddleware)
	s.router.Use(s.MetricsMiddleware)

	s.router.Get("/api/health", s.HandleHealth)

	for _, register := range s.Registrars {
		register(s.router)
	}
}

// Shutdown performs a graceful termination of chassis resources. Metric
// collectors that buffer data get a chance to flush.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	if flusher, ok := s.Metrics.(interface{ Flush(context.Context) error }); ok && s.Metrics != nil {
		if err := flusher.Flush(ctx); err != nil {
			s.Logger.Error("error flushing metrics", "error", err)
		}
	}

	s.Logger.Info("server shutdown complete")
	return nil
}

// corsAllowedOrigins returns the CORS allowed origins from configuration,
// always including the configured frontend URL.
func (s *Server) corsAllowedOrigins() []string {
	origins := append([]string{}, s.Config.Security.CorsAllowedOrigins...)
	if s.Config.Server.FrontendURL != "" {
		seen := false
		for _, o := range origins {
			if o == s.Config.Server.FrontendURL {
				seen = true
				break
			}
		}
		if !seen {
			origins = append(origins, s.Config.Server.FrontendURL)
		}
	}
	return origins
}
