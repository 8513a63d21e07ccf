package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/driftlock-systems/driftlock/internal/provider"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

// GetDrift returns the latest drift report for a model. The staleness marker
// reflects whether the most recent monitor cycle failed: the report is still
// the last known good one.
func (h *Handlers) GetDrift(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "modelID")
	report, err := h.provider.GetLatestDriftReport(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load drift report", err)
		return
	}
	if report == nil {
		h.writeError(w, http.StatusNotFound, "no drift report for model", nil)
		return
	}
	report.Stale, _ = h.provider.GetStaleness(r.Context(), id, provider.ComponentDrift)
	_ = json.NewEncoder(w).Encode(report)
}

// GetDriftHistory returns recent drift reports, newest first.
func (h *Handlers) GetDriftHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "modelID")
	reports, err := h.provider.ListDriftReports(r.Context(), id, queryLimit(r, 20))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list drift reports", err)
		return
	}
	if reports == nil {
		reports = []types.DriftReport{}
	}
	_ = json.NewEncoder(w).Encode(reports)
}

// GetPerformance returns the latest performance summary for a model.
func (h *Handlers) GetPerformance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "modelID")
	summary, err := h.provider.GetLatestPerformanceSummary(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load performance summary", err)
		return
	}
	if summary == nil {
		h.writeError(w, http.StatusNotFound, "no performance summary for model", nil)
		return
	}
	summary.Stale, _ = h.provider.GetStaleness(r.Context(), id, provider.ComponentPerformance)
	_ = json.NewEncoder(w).Encode(summary)
}

// ListDecisions returns recent retrain decisions, newest first.
func (h *Handlers) ListDecisions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "modelID")
	decisions, err := h.provider.ListDecisions(r.Context(), id, queryLimit(r, 20))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list decisions", err)
		return
	}
	if decisions == nil {
		decisions = []types.RetrainDecision{}
	}
	_ = json.NewEncoder(w).Encode(decisions)
}

// ListEvents returns recent audit events for a model.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "modelID")
	events, err := h.provider.ListEvents(r.Context(), id, queryLimit(r, 50))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list events", err)
		return
	}
	if events == nil {
		events = []types.Event{}
	}
	_ = json.NewEncoder(w).Encode(events)
}

// monitoringReport is the exported roll-up of everything known about a model.
type monitoringReport struct {
	Model       *types.ModelVersion       `json:"model"`
	Drift       *types.DriftReport        `json:"drift,omitempty"`
	Performance *types.PerformanceSummary `json:"performance,omitempty"`
	Decisions   []types.RetrainDecision   `json:"decisions"`
	GeneratedAt time.Time                 `json:"generatedAt"`
}

// GetReport exports a combined monitoring report: lifecycle state, latest
// drift and performance, and recent decisions in one document.
func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "modelID")

	mv, err := h.provider.GetModelVersion(ctx, id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load model", err)
		return
	}
	if mv == nil {
		h.writeError(w, http.StatusNotFound, "model not found", nil)
		return
	}

	report := monitoringReport{Model: mv, GeneratedAt: time.Now()}

	if report.Drift, err = h.provider.GetLatestDriftReport(ctx, id); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load drift report", err)
		return
	}
	if report.Drift != nil {
		report.Drift.Stale, _ = h.provider.GetStaleness(ctx, id, provider.ComponentDrift)
	}

	if report.Performance, err = h.provider.GetLatestPerformanceSummary(ctx, id); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load performance summary", err)
		return
	}
	if report.Performance != nil {
		report.Performance.Stale, _ = h.provider.GetStaleness(ctx, id, provider.ComponentPerformance)
	}

	if report.Decisions, err = h.provider.ListDecisions(ctx, id, 10); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list decisions", err)
		return
	}
	if report.Decisions == nil {
		report.Decisions = []types.RetrainDecision{}
	}

	_ = json.NewEncoder(w).Encode(report)
}

func queryLimit(r *http.Request, def int) int {
	limit := def
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	return limit
}
