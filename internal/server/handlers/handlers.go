// Package handlers implements HTTP request handlers for the Driftlock API.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/driftlock-systems/driftlock/internal/decision"
	"github.com/driftlock-systems/driftlock/internal/drift"
	"github.com/driftlock-systems/driftlock/internal/perf"
	"github.com/driftlock-systems/driftlock/internal/provider"
	"github.com/driftlock-systems/driftlock/internal/rollout"
)

// Handlers contains all HTTP handler dependencies.
type Handlers struct {
	provider provider.Provider
	detector *drift.Detector
	perf     *perf.Registry
	engine   *decision.Engine
	rollout  *rollout.Controller
	logger   *slog.Logger
}

// New creates a new Handlers instance.
func New(prov provider.Provider, det *drift.Detector, reg *perf.Registry, eng *decision.Engine, ctrl *rollout.Controller) *Handlers {
	return &Handlers{
		provider: prov,
		detector: det,
		perf:     reg,
		engine:   eng,
		rollout:  ctrl,
		logger:   slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (h *Handlers) SetLogger(l *slog.Logger) {
	if l != nil {
		h.logger = l
	}
}

// writeError logs the internal error and returns a sanitized JSON error to the client.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, "error", err, "status", status)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
