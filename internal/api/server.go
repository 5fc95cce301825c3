// Package api exposes the analysis pipeline over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/veritas/internal/analysis"
	"github.com/opensource-finance/veritas/internal/celrules"
	"github.com/opensource-finance/veritas/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, rules *celrules.Engine, processor *analysis.Processor, version string) *Server {
	handler := NewHandler(repo, cache, bus, rules, processor, version)
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

		// Analysis
		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(cache, cfg.RateLimitPerMinute))
			r.Post("/analyze", handler.Analyze)
			r.Post("/score", handler.Score)
		})

		// Analysis retrieval
		r.Get("/analyses/{id}", handler.GetAnalysis)
		r.Get("/analyses/{id}/digest", handler.GetAnalysisDigest)
		r.Get("/analyses", handler.ListAnalyses)

		// Custom rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)
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
