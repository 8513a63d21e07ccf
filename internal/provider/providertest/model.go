package providertest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlock-systems/driftlock/internal/provider"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

// TestModelVersionCRUD verifies put, get, list, and not-found behavior.
func TestModelVersionCRUD(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	mv := types.ModelVersion{
		ID:        "ct-model-crud",
		TrainedAt: time.Now().Add(-time.Hour),
		Status:    types.ModelCandidate,
		Metrics:   types.MetricsSnapshot{Accuracy: 0.91, Precision: 0.88, Recall: 0.9, F1: 0.89},
		Version:   1,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	err := prov.PutModelVersion(ctx, mv)
	require.NoError(t, err)

	got, err := prov.GetModelVersion(ctx, "ct-model-crud")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ct-model-crud", got.ID)
	assert.Equal(t, types.ModelCandidate, got.Status)
	assert.InDelta(t, 0.91, got.Metrics.Accuracy, 1e-9)

	// Not found returns (nil, nil)
	got, err = prov.GetModelVersion(ctx, "ct-nonexistent-model")
	require.NoError(t, err)
	assert.Nil(t, got)

	// List includes the stored version
	models, err := prov.ListModelVersions(ctx)
	require.NoError(t, err)
	found := false
	for _, m := range models {
		if m.ID == "ct-model-crud" {
			found = true
		}
	}
	assert.True(t, found, "ListModelVersions should include ct-model-crud")
}

// TestCompareAndSwap verifies CAS with correct version, stale version, and
// concurrent contention where exactly one writer wins.
func TestCompareAndSwap(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	mv := types.ModelVersion{
		ID:        "ct-model-cas",
		Status:    types.ModelCandidate,
		Version:   1,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, prov.PutModelVersion(ctx, mv))

	// Correct version succeeds
	next := mv
	next.Status = types.ModelCanary
	next.Version = 2
	next.UpdatedAt = time.Now()
	ok, err := prov.CompareAndSwapModelVersion(ctx, "ct-model-cas", 1, next)
	require.NoError(t, err)
	assert.True(t, ok)

	// Stale version fails
	stale := next
	stale.Status = types.ModelActive
	stale.Version = 3
	ok, err = prov.CompareAndSwapModelVersion(ctx, "ct-model-cas", 1, stale)
	require.NoError(t, err)
	assert.False(t, ok)

	// Record is still at version 2
	got, err := prov.GetModelVersion(ctx, "ct-model-cas")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.ModelCanary, got.Status)
	assert.Equal(t, 2, got.Version)

	// Unknown ID fails without error
	ok, err = prov.CompareAndSwapModelVersion(ctx, "ct-nonexistent-model", 1, next)
	require.NoError(t, err)
	assert.False(t, ok)

	// Exactly one concurrent writer wins
	race := types.ModelVersion{
		ID:        "ct-model-race",
		Status:    types.ModelCanary,
		Version:   1,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, prov.PutModelVersion(ctx, race))

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			update := race
			update.Status = types.ModelActive
			update.Version = 2
			update.UpdatedAt = time.Now()
			ok, err := prov.CompareAndSwapModelVersion(ctx, "ct-model-race", 1, update)
			if err == nil && ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load(), "exactly 1 goroutine should win the CAS")
}

// TestFeatureSnapshots verifies snapshot storage, per-feature upsert, and
// retrieval for a model version.
func TestFeatureSnapshots(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	amount := types.FeatureSnapshot{
		FeatureName:    "amount",
		Kind:           types.FeatureNumeric,
		BinEdges:       []float64{0, 50, 100, 500, 1000},
		ReferenceFreqs: []float64{0.25, 0.25, 0.25, 0.25},
		BuiltAt:        time.Now(),
		ModelVersion:   "ct-model-snap",
	}
	country := types.FeatureSnapshot{
		FeatureName:    "country",
		Kind:           types.FeatureCategorical,
		Categories:     []string{"US", "DE", "JP"},
		ReferenceFreqs: []float64{0.5, 0.3, 0.2},
		BuiltAt:        time.Now(),
		ModelVersion:   "ct-model-snap",
	}

	require.NoError(t, prov.PutFeatureSnapshot(ctx, amount))
	require.NoError(t, prov.PutFeatureSnapshot(ctx, country))

	// Re-storing the same feature replaces, not duplicates
	amount.ReferenceFreqs = []float64{0.4, 0.3, 0.2, 0.1}
	require.NoError(t, prov.PutFeatureSnapshot(ctx, amount))

	snaps, err := prov.GetFeatureSnapshots(ctx, "ct-model-snap")
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	byName := make(map[string]types.FeatureSnapshot, len(snaps))
	for _, s := range snaps {
		byName[s.FeatureName] = s
	}
	assert.Equal(t, []float64{0.4, 0.3, 0.2, 0.1}, byName["amount"].ReferenceFreqs)
	assert.Equal(t, types.FeatureCategorical, byName["country"].Kind)
	assert.Equal(t, []string{"US", "DE", "JP"}, byName["country"].Categories)

	// Unknown model has no snapshots
	snaps, err = prov.GetFeatureSnapshots(ctx, "ct-nonexistent-model")
	require.NoError(t, err)
	assert.Empty(t, snaps)
}
