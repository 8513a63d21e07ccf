package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/driftlock-systems/driftlock/internal/metrics"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

// PostPrediction ingests one prediction record from the serving layer. An
// omitted ID is assigned server-side and returned so the caller can report
// ground truth against it later.
func (h *Handlers) PostPrediction(w http.ResponseWriter, r *http.Request) {
	var rec types.PredictionRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if rec.ModelVersion == "" {
		h.writeError(w, http.StatusBadRequest, "modelVersion is required", nil)
		return
	}
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	if err := h.provider.PutPrediction(r.Context(), rec); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to store prediction", err)
		return
	}
	h.perf.Observe(rec)
	metrics.PredictionsIngested.Add(1)

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(rec)
}

// PostGroundTruth ingests a later-observed outcome and joins it to the
// matching prediction by ID. An outcome with no known prediction is still
// stored; the pair just never contributes to performance metrics.
func (h *Handlers) PostGroundTruth(w http.ResponseWriter, r *http.Request) {
	var truth types.GroundTruthRecord
	if err := json.NewDecoder(r.Body).Decode(&truth); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if truth.ID == "" {
		h.writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}
	if truth.ActualLabel == "" {
		h.writeError(w, http.StatusBadRequest, "actualLabel is required", nil)
		return
	}
	if truth.ObservedAt.IsZero() {
		truth.ObservedAt = time.Now()
	}

	if err := h.provider.PutGroundTruth(r.Context(), truth); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to store ground truth", err)
		return
	}
	matched := h.perf.Resolve(truth)
	metrics.GroundTruthsIngested.Add(1)

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      truth.ID,
		"matched": matched,
	})
}
