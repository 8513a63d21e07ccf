// Package server implements the Driftlock HTTP API server.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/driftlock-systems/driftlock/internal/decision"
	"github.com/driftlock-systems/driftlock/internal/drift"
	"github.com/driftlock-systems/driftlock/internal/perf"
	"github.com/driftlock-systems/driftlock/internal/provider"
	"github.com/driftlock-systems/driftlock/internal/rollout"
	"github.com/driftlock-systems/driftlock/internal/server/handlers"
)

// Deps bundles the collaborators the API surfaces.
type Deps struct {
	Provider provider.Provider
	Detector *drift.Detector
	Perf     *perf.Registry
	Engine   *decision.Engine
	Rollout  *rollout.Controller
	Logger   *slog.Logger
}

// Server is the Driftlock HTTP API server.
type Server struct {
	deps   Deps
	router chi.Router
	addr   string
	srv    *http.Server
	logger *slog.Logger
}

// New creates a new HTTP server. An empty apiKey disables authentication; a
// zero maxBody disables the request size limit.
func New(addr string, deps Deps, apiKey string, maxBody int64) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:   deps,
		addr:   addr,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))
	if apiKey != "" {
		r.Use(APIKeyMiddleware(apiKey))
	}
	if maxBody > 0 {
		r.Use(MaxBodyMiddleware(maxBody))
	}

	s.router = r
	s.registerRoutes(r)
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("server listening", "addr", s.addr)
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) registerRoutes(r chi.Router) {
	h := handlers.New(s.deps.Provider, s.deps.Detector, s.deps.Perf, s.deps.Engine, s.deps.Rollout)
	h.SetLogger(s.logger)

	r.Route("/api", func(r chi.Router) {
		// Health
		r.Get("/health", h.Health)

		// Ingest
		r.Post("/predictions", h.PostPrediction)
		r.Post("/groundtruth", h.PostGroundTruth)

		// Models
		r.Get("/models", h.ListModels)
		r.Post("/models", h.RegisterModel)
		r.Get("/models/active", h.ActiveModel)
		r.Get("/models/{modelID}", h.GetModel)
		r.Post("/models/{modelID}/snapshots", h.PushSnapshots)

		// Monitoring
		r.Get("/models/{modelID}/drift", h.GetDrift)
		r.Get("/models/{modelID}/drift/history", h.GetDriftHistory)
		r.Get("/models/{modelID}/performance", h.GetPerformance)
		r.Get("/models/{modelID}/report", h.GetReport)
		r.Get("/models/{modelID}/events", h.ListEvents)

		// Decisions
		r.Get("/models/{modelID}/decisions", h.ListDecisions)
		r.Post("/models/{modelID}/evaluate", h.Evaluate)
		r.Get("/decisions/{decisionID}", h.GetDecision)
		r.Post("/decisions/{decisionID}/resolve", h.ResolveDecision)
		r.Post("/decisions/{decisionID}/cancel", h.CancelDecision)

		// Rollout commands
		r.Post("/models/{modelID}/canary", h.StartCanary)
		r.Post("/models/{modelID}/promote", h.Promote)
		r.Post("/models/{modelID}/rollback", h.Rollback)
		r.Post("/models/{modelID}/retire", h.Retire)

		// Routing
		r.Get("/route", h.Route)
	})

	// expvar counters from internal/metrics
	r.Method(http.MethodGet, "/debug/vars", metricsHandler())
}
