// Package api provides the HTTP server for the formd service.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/formlab/formd/internal/api/middleware"
	"github.com/formlab/formd/internal/catalog"
	"github.com/formlab/formd/internal/config"
	"github.com/formlab/formd/internal/health"
	"github.com/formlab/formd/internal/jobs"
	"github.com/formlab/formd/internal/store"
)

// Runner triggers analysis runs and reports their state. Implemented by
// jobs.Runner; tests substitute stubs.
type Runner interface {
	Trigger(ctx context.Context) (string, error)
	Running() bool
	Status() *jobs.Status
}

// Catalog lists analyzed videos. Implemented by catalog.Store.
type Catalog interface {
	List(ctx context.Context) ([]catalog.Entry, error)
}

// Deps are the server's collaborators.
type Deps struct {
	Health  *health.Manager
	Runner  Runner
	Catalog Catalog
	Runs    store.Store
}

// Server is the HTTP API server for formd. It owns routing and handlers;
// the daemon manager owns the listener lifecycle.
type Server struct {
	cfg     config.AppConfig
	health  *health.Manager
	runner  Runner
	catalog Catalog
	runs    store.Store
}

// New constructs a Server.
func New(cfg config.AppConfig, deps Deps) *Server {
	return &Server{
		cfg:     cfg,
		health:  deps.Health,
		runner:  deps.Runner,
		catalog: deps.Catalog,
		runs:    deps.Runs,
	}
}

// Router builds the chi router with the full middleware stack and all routes.
func (s *Server) Router() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		AllowedOrigins: s.cfg.API.AllowedOrigins,
		EnableMetrics:  true,
		TracingService: "formd-api",
		EnableLogging:  true,
		RateLimit:      s.cfg.API.RateLimit,
		RateWindow:     s.cfg.API.RateWindow,
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(api chi.Router) {
		api.Get("/status", s.handleStatus)
		api.Get("/runs", s.handleRuns)
		api.Get("/runs/{runID}", s.handleRunByID)
		api.Get("/videos", s.handleVideos)

		api.Group(func(priv chi.Router) {
			priv.Use(s.requireToken)
			priv.With(middleware.AnalyzeRateLimit()).Post("/analyze", s.handleAnalyze)
		})
	})

	// Exports and annotated frames, rooted in the data directory.
	r.Handle("/files/*", http.StripPrefix("/files/", s.secureFileServer()))

	return r
}
