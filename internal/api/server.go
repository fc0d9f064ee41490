package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-compliance/gavel/internal/catalog"
	"github.com/opensource-compliance/gavel/internal/domain"
	"github.com/opensource-compliance/gavel/internal/drift"
	"github.com/opensource-compliance/gavel/internal/metrics"
	"github.com/opensource-compliance/gavel/internal/proof"
	"github.com/opensource-compliance/gavel/internal/scoring"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, cat *catalog.Catalog, engine *scoring.Engine, tracker *drift.Tracker, issuer *proof.Issuer, verifier *proof.Verifier, m *metrics.Metrics, version string) *Server {
	handler := NewHandler(repo, cache, bus, cat, engine, tracker, issuer, verifier, m, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health and observability endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if m != nil {
		router.Handle("/metrics", promhttp.Handler())
	}

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Regulation catalog
		r.Post("/catalog/{jurisdictionID}/versions", handler.PublishVersion)
		r.Get("/catalog/{jurisdictionID}/active", handler.GetActiveVersion)
		r.Get("/catalog/versions/{id}", handler.GetVersion)
		r.Get("/catalog/diff", handler.DiffVersions)

		// Documents and their drift state
		r.Post("/documents", handler.IngestDocument)
		r.Get("/documents/{id}", handler.GetDocument)
		r.Get("/documents/{id}/drift", handler.ListDrift)
		r.Post("/documents/{id}/rescore", handler.Rescore)

		// Compliance analysis
		r.Post("/analyze", handler.Analyze)
		r.Post("/portfolio/analyze", handler.AnalyzePortfolio)
		r.Get("/profiles/{id}", handler.GetProfile)

		// Attestations
		r.Post("/profiles/{id}/attest", handler.Attest)
		r.Get("/attestations/{id}", handler.GetAttestation)
		r.Post("/attestations/verify", handler.VerifyAttestation)
		r.Post("/attestations/verify-token", handler.VerifyToken)
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
