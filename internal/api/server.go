package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/underwriter/internal/decision"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/metrics"
	"github.com/opensource-finance/underwriter/internal/rules"
	"github.com/opensource-finance/underwriter/internal/settings"
)

// Deps are the collaborators the API serves. Repo, Cache, Bus and Metrics
// may be nil.
type Deps struct {
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Scorer   *decision.Service
	Settings *settings.Store
	Registry *rules.Registry
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Version  string

	// Workers reports that a worker consumes submitted requests. Without one
	// POST /requests is refused instead of queueing into the void.
	Workers bool
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware(deps.Logger))
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware(deps.Logger))
	if deps.Metrics != nil {
		router.Use(MetricsMiddleware(deps.Metrics))
	}
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// Scoring
	router.Post("/check", handler.Check)
	router.Post("/eligibility", handler.Eligibility)
	router.Post("/requests", handler.Submit)
	router.Get("/requests/{id}/evaluations", handler.ListRequestEvaluations)
	router.Get("/evaluations/{id}", handler.GetEvaluation)

	// Rules
	router.Get("/catalog", handler.Catalog)
	router.Post("/rules/validate", handler.ValidateRules)

	// Settings
	router.Get("/banks", handler.ListBanks)
	router.Get("/banks/{code}", handler.GetBank)
	router.Put("/banks/{code}", handler.PutBank)
	router.Delete("/banks/{code}", handler.DeleteBank)
	router.Get("/settings/global", handler.GetGlobal)
	router.Put("/settings/global", handler.PutGlobal)
	router.Post("/settings/reload", handler.Reload)

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
