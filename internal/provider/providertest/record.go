package providertest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlock-systems/driftlock/internal/provider"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

// TestPredictionRoundTrip verifies prediction storage, ID lookup, and
// newest-first window listing with a limit.
func TestPredictionRoundTrip(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		rec := types.PredictionRecord{
			ID:                   fmt.Sprintf("ct-pred-%d", i),
			Timestamp:            base.Add(time.Duration(i) * time.Second),
			Features:             map[string]float64{"amount": float64(i) * 10},
			PredictedLabel:       "approve",
			PredictedProbability: 0.8,
			ModelVersion:         "ct-model-pred",
			LatencyMillis:        12,
		}
		require.NoError(t, prov.PutPrediction(ctx, rec))
	}

	got, err := prov.GetPrediction(ctx, "ct-pred-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ct-pred-2", got.ID)
	assert.Equal(t, "approve", got.PredictedLabel)
	assert.InDelta(t, 20.0, got.Features["amount"], 1e-9)

	// Not found returns (nil, nil)
	got, err = prov.GetPrediction(ctx, "ct-nonexistent-pred")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Window listing: newest first, limit honored
	recs, err := prov.ListPredictions(ctx, "ct-model-pred", 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "ct-pred-4", recs[0].ID)
	assert.Equal(t, "ct-pred-3", recs[1].ID)
	assert.Equal(t, "ct-pred-2", recs[2].ID)
}

// TestGroundTruthRoundTrip verifies ground-truth storage and ID lookup.
func TestGroundTruthRoundTrip(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	rec := types.GroundTruthRecord{
		ID:          "ct-truth-1",
		ActualLabel: "deny",
		ObservedAt:  time.Now(),
	}
	require.NoError(t, prov.PutGroundTruth(ctx, rec))

	got, err := prov.GetGroundTruth(ctx, "ct-truth-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "deny", got.ActualLabel)

	// Not found returns (nil, nil)
	got, err = prov.GetGroundTruth(ctx, "ct-nonexistent-truth")
	require.NoError(t, err)
	assert.Nil(t, got)
}
