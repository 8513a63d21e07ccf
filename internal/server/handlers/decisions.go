package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/driftlock-systems/driftlock/internal/decision"
)

// Evaluate runs one retrain policy evaluation for a model on demand.
func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "modelID")
	dec, err := h.engine.Evaluate(r.Context(), id)
	if err != nil {
		if errors.Is(err, decision.ErrDecisionInFlight) {
			h.writeError(w, http.StatusConflict, "evaluation already in flight", nil)
			return
		}
		if strings.Contains(err.Error(), "not registered") {
			h.writeError(w, http.StatusNotFound, "model not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "evaluation failed", err)
		return
	}
	_ = json.NewEncoder(w).Encode(dec)
}

// GetDecision returns a single decision by ID.
func (h *Handlers) GetDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "decisionID")
	dec, err := h.provider.GetDecision(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load decision", err)
		return
	}
	if dec == nil {
		h.writeError(w, http.StatusNotFound, "decision not found", nil)
		return
	}
	_ = json.NewEncoder(w).Encode(dec)
}

// closeDecisionRequest carries the free-text resolution or cancellation
// reason.
type closeDecisionRequest struct {
	Resolution string `json:"resolution,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ResolveDecision closes an open decision after a training cycle completed.
func (h *Handlers) ResolveDecision(w http.ResponseWriter, r *http.Request) {
	var req closeDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if req.Resolution == "" {
		h.writeError(w, http.StatusBadRequest, "resolution is required", nil)
		return
	}
	h.closeDecision(w, r, req.Resolution, h.engine.Resolve)
}

// CancelDecision closes an open decision without a training cycle, re-arming
// the trigger.
func (h *Handlers) CancelDecision(w http.ResponseWriter, r *http.Request) {
	var req closeDecisionRequest
	// A body is optional for cancellation.
	_ = json.NewDecoder(r.Body).Decode(&req)
	h.closeDecision(w, r, req.Reason, h.engine.Cancel)
}

func (h *Handlers) closeDecision(w http.ResponseWriter, r *http.Request, note string, close func(ctx context.Context, decisionID, note string) error) {
	id := chi.URLParam(r, "decisionID")
	if err := close(r.Context(), id, note); err != nil {
		switch {
		case strings.Contains(err.Error(), "not found"):
			h.writeError(w, http.StatusNotFound, "decision not found", nil)
		case strings.Contains(err.Error(), "already resolved"):
			h.writeError(w, http.StatusConflict, "decision already resolved", nil)
		default:
			h.writeError(w, http.StatusInternalServerError, "failed to close decision", err)
		}
		return
	}

	dec, err := h.provider.GetDecision(r.Context(), id)
	if err != nil || dec == nil {
		h.writeError(w, http.StatusInternalServerError, "failed to reload decision", err)
		return
	}
	_ = json.NewEncoder(w).Encode(dec)
}
