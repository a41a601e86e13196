package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/salesops/harrier/internal/aggregate"
	"github.com/salesops/harrier/internal/domain"
	"github.com/salesops/harrier/internal/fetch"
	"github.com/salesops/harrier/internal/health"
	"github.com/salesops/harrier/internal/ingest"
	"github.com/salesops/harrier/internal/report"
	"github.com/salesops/harrier/internal/validate"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, gw domain.Gateway, cache domain.Cache, bus domain.EventBus, fetcher *fetch.Fetcher, enricher *aggregate.Enricher, reports *report.Service, monitor *health.Monitor, inserter *ingest.Inserter, validator *validate.Engine, version string) *Server {
	handler := NewHandler(gw, cache, bus, fetcher, enricher, reports, monitor, inserter, validator, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Customer analytics
		r.Get("/customers/analytics", handler.CustomerAnalytics)

		// Analytics reports
		r.Post("/reports", handler.RunReport)
		r.Post("/reports/refresh", handler.RefreshReport)

		// Sales import
		r.Post("/sales/import", handler.ImportSales)

		// Connection health
		r.Get("/connection/status", handler.ConnectionStatus)
		r.Get("/connection/alerts", handler.ConnectionAlerts)
		r.Post("/connection/test", handler.TestConnection)

		// Validation check management
		r.Get("/validation/checks", handler.ListChecks)
		r.Post("/validation/checks", handler.CreateCheck)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
