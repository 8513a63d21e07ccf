package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/driftlock-systems/driftlock/internal/rollout"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

// registerModelRequest is the candidate registration payload from the
// training collaborator.
type registerModelRequest struct {
	ID        string                `json:"id"`
	TrainedAt time.Time             `json:"trainedAt"`
	Metrics   types.MetricsSnapshot `json:"metrics"`
}

// RegisterModel registers a freshly trained model as a candidate.
func (h *Handlers) RegisterModel(w http.ResponseWriter, r *http.Request) {
	var req registerModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if req.ID == "" {
		h.writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}
	if req.TrainedAt.IsZero() {
		req.TrainedAt = time.Now()
	}

	mv, err := h.rollout.Register(r.Context(), req.ID, req.TrainedAt, req.Metrics)
	if err != nil {
		if strings.Contains(err.Error(), "already registered") {
			h.writeError(w, http.StatusConflict, "model already registered", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to register model", err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(mv)
}

// ListModels returns all model versions.
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.provider.ListModelVersions(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list models", err)
		return
	}
	if models == nil {
		models = []types.ModelVersion{}
	}
	_ = json.NewEncoder(w).Encode(models)
}

// GetModel returns a single model version.
func (h *Handlers) GetModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "modelID")
	mv, err := h.provider.GetModelVersion(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load model", err)
		return
	}
	if mv == nil {
		h.writeError(w, http.StatusNotFound, "model not found", nil)
		return
	}
	_ = json.NewEncoder(w).Encode(mv)
}

// ActiveModel returns the single active model version.
func (h *Handlers) ActiveModel(w http.ResponseWriter, r *http.Request) {
	mv, err := h.rollout.ActiveModel(r.Context())
	if err != nil {
		if errors.Is(err, rollout.ErrNoActiveModel) {
			h.writeError(w, http.StatusNotFound, "no active model", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to resolve active model", err)
		return
	}
	_ = json.NewEncoder(w).Encode(mv)
}

// PushSnapshots stores the training-time feature snapshots for a model.
// Snapshots freeze the reference distribution the drift detector compares
// against; re-pushing a feature replaces its snapshot.
func (h *Handlers) PushSnapshots(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "modelID")
	mv, err := h.provider.GetModelVersion(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load model", err)
		return
	}
	if mv == nil {
		h.writeError(w, http.StatusNotFound, "model not found", nil)
		return
	}

	var snaps []types.FeatureSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snaps); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if len(snaps) == 0 {
		h.writeError(w, http.StatusBadRequest, "at least one snapshot is required", nil)
		return
	}

	now := time.Now()
	for i := range snaps {
		snaps[i].ModelVersion = id
		if snaps[i].BuiltAt.IsZero() {
			snaps[i].BuiltAt = now
		}
		if msg := validateSnapshot(snaps[i]); msg != "" {
			h.writeError(w, http.StatusBadRequest, msg, nil)
			return
		}
	}
	for _, snap := range snaps {
		if err := h.provider.PutFeatureSnapshot(r.Context(), snap); err != nil {
			h.writeError(w, http.StatusInternalServerError, "failed to store snapshot", err)
			return
		}
	}

	_ = h.provider.AppendEvent(r.Context(), types.Event{
		Kind:         types.EventSnapshotStored,
		ModelVersion: id,
		Details:      map[string]interface{}{"features": len(snaps)},
		Timestamp:    now,
	})

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]int{"stored": len(snaps)})
}

func validateSnapshot(snap types.FeatureSnapshot) string {
	if snap.FeatureName == "" {
		return "featureName is required"
	}
	switch snap.Kind {
	case types.FeatureCategorical:
		if len(snap.Categories) == 0 || len(snap.Categories) != len(snap.ReferenceFreqs) {
			return "categorical snapshot needs matching categories and referenceFreqs"
		}
	case types.FeatureNumeric, "":
		if len(snap.BinEdges) < 2 || len(snap.BinEdges)-1 != len(snap.ReferenceFreqs) {
			return "numeric snapshot needs binEdges one longer than referenceFreqs"
		}
	default:
		return "unknown feature kind"
	}
	return ""
}

// StartCanary runs the offline gate and moves a candidate into canary.
func (h *Handlers) StartCanary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "modelID")
	mv, err := h.rollout.StartCanary(r.Context(), id)
	if err != nil {
		h.writeRolloutError(w, "canary start failed", err)
		return
	}
	_ = json.NewEncoder(w).Encode(mv)
}

// Promote moves a canary to active.
func (h *Handlers) Promote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "modelID")
	mv, err := h.rollout.Promote(r.Context(), id)
	if err != nil {
		h.writeRolloutError(w, "promotion failed", err)
		return
	}
	_ = json.NewEncoder(w).Encode(mv)
}

// Rollback retires the active model and restores its predecessor.
func (h *Handlers) Rollback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "modelID")
	mv, err := h.rollout.Rollback(r.Context(), id)
	if err != nil {
		h.writeRolloutError(w, "rollback failed", err)
		return
	}
	_ = json.NewEncoder(w).Encode(mv)
}

// Retire moves a model to the terminal retired state.
func (h *Handlers) Retire(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "modelID")
	if err := h.rollout.Retire(r.Context(), id); err != nil {
		h.writeRolloutError(w, "retire failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Route returns the model version a request should be served by. The split is
// deterministic per request ID, so repeated calls agree.
func (h *Handlers) Route(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("requestId")
	if requestID == "" {
		h.writeError(w, http.StatusBadRequest, "requestId query parameter is required", nil)
		return
	}
	mv, err := h.rollout.Route(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, rollout.ErrNoActiveModel) {
			h.writeError(w, http.StatusNotFound, "no routable model", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "routing failed", err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{
		"requestId":    requestID,
		"modelVersion": mv.ID,
		"status":       string(mv.Status),
	})
}

// writeRolloutError maps lifecycle errors onto HTTP statuses.
func (h *Handlers) writeRolloutError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, rollout.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, rollout.ErrPromotionEvaluationFailed):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case strings.Contains(err.Error(), "not registered"):
		h.writeError(w, http.StatusNotFound, "model not found", nil)
	default:
		h.writeError(w, http.StatusInternalServerError, msg, err)
	}
}
