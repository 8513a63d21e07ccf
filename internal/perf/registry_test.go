package perf

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

func TestRegistryRoutesByModelVersion(t *testing.T) {
	reg := NewRegistry(types.PerformanceConfig{MinMatchedPairs: 1})

	now := time.Now()
	reg.Observe(types.PredictionRecord{ID: "a-1", Timestamp: now, PredictedLabel: "1", ModelVersion: "m-active"})
	reg.Observe(types.PredictionRecord{ID: "c-1", Timestamp: now, PredictedLabel: "0", ModelVersion: "m-canary"})

	// Ground truth carries only the prediction ID; the registry routes it to
	// the tracker that observed the prediction.
	require.True(t, reg.Resolve(types.GroundTruthRecord{ID: "a-1", ActualLabel: "1", ObservedAt: now}))
	require.True(t, reg.Resolve(types.GroundTruthRecord{ID: "c-1", ActualLabel: "0", ObservedAt: now}))

	active, err := reg.Snapshot("m-active")
	require.NoError(t, err)
	assert.Equal(t, int64(1), active.TruePositives)

	canary, err := reg.Snapshot("m-canary")
	require.NoError(t, err)
	assert.Equal(t, int64(1), canary.TrueNegatives)
}

func TestRegistryUnknownPredictionID(t *testing.T) {
	reg := NewRegistry(types.PerformanceConfig{})
	assert.False(t, reg.Resolve(types.GroundTruthRecord{ID: "nope", ActualLabel: "1", ObservedAt: time.Now()}))
}

func TestRegistryTrackerIsStable(t *testing.T) {
	reg := NewRegistry(types.PerformanceConfig{})
	assert.Same(t, reg.Tracker("m-1"), reg.Tracker("m-1"))
	assert.NotSame(t, reg.Tracker("m-1"), reg.Tracker("m-2"))
}

func TestRegistrySweepsNeverLabeledPredictions(t *testing.T) {
	reg := NewRegistry(types.PerformanceConfig{MinMatchedPairs: 1, MaxLabelLatency: "1h"})

	// A flood of predictions whose labels never arrive.
	stale := time.Now().Add(-3 * time.Hour)
	for i := 0; i < 1000; i++ {
		reg.Observe(types.PredictionRecord{
			ID:             fmt.Sprintf("p-%d", i),
			Timestamp:      stale,
			PredictedLabel: "1",
			ModelVersion:   "m-1",
		})
	}

	// The sweep is throttled on the ingest path; arm it for the next Observe.
	reg.mu.Lock()
	reg.nextSweep = time.Time{}
	reg.mu.Unlock()

	reg.Observe(types.PredictionRecord{ID: "fresh", Timestamp: time.Now(), PredictedLabel: "1", ModelVersion: "m-1"})

	reg.mu.RLock()
	owners := len(reg.owner)
	reg.mu.RUnlock()
	assert.Equal(t, 1, owners, "routing entries must expire with their predictions")

	// A label arriving for a swept prediction is unroutable, same as the
	// tracker treats it.
	assert.False(t, reg.Resolve(types.GroundTruthRecord{ID: "p-0", ActualLabel: "1", ObservedAt: time.Now()}))
}
