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

// TestDriftReports verifies report storage, latest lookup, and newest-first
// history listing.
func TestDriftReports(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 4; i++ {
		report := types.DriftReport{
			ModelVersion: "ct-model-drift",
			EvaluatedAt:  base.Add(time.Duration(i) * time.Second),
			Features: map[string]types.FeatureDrift{
				"amount": {PSI: float64(i) * 0.1, Status: types.DriftStable},
			},
			Aggregate:  types.DriftStable,
			SampleSize: 100 + i,
		}
		require.NoError(t, prov.PutDriftReport(ctx, report))
	}

	latest, err := prov.GetLatestDriftReport(ctx, "ct-model-drift")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 103, latest.SampleSize)

	history, err := prov.ListDriftReports(ctx, "ct-model-drift", 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 103, history[0].SampleSize)
	assert.Equal(t, 102, history[1].SampleSize)
	assert.Equal(t, 101, history[2].SampleSize)

	// No reports yet returns (nil, nil)
	latest, err = prov.GetLatestDriftReport(ctx, "ct-nonexistent-model")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

// TestPerformanceSummary verifies the latest summary wins and missing models
// return nil.
func TestPerformanceSummary(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	first := types.PerformanceSummary{
		ModelVersion: "ct-model-perf",
		MatchedPairs: 50,
		Accuracy:     0.9,
		GeneratedAt:  time.Now().Add(-time.Minute),
	}
	require.NoError(t, prov.PutPerformanceSummary(ctx, first))

	second := first
	second.MatchedPairs = 80
	second.Accuracy = 0.87
	second.GeneratedAt = time.Now()
	require.NoError(t, prov.PutPerformanceSummary(ctx, second))

	got, err := prov.GetLatestPerformanceSummary(ctx, "ct-model-perf")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 80, got.MatchedPairs)
	assert.InDelta(t, 0.87, got.Accuracy, 1e-9)

	got, err = prov.GetLatestPerformanceSummary(ctx, "ct-nonexistent-model")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestDecisions verifies the decision ledger: ID lookup, latest lookup, and
// newest-first listing.
func TestDecisions(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 4; i++ {
		dec := types.RetrainDecision{
			DecisionID:   fmt.Sprintf("ct-dec-%d", i),
			ModelVersion: "ct-model-dec",
			EvaluatedAt:  base.Add(time.Duration(i) * time.Second),
			Triggered:    i%2 == 0,
		}
		if dec.Triggered {
			dec.Reasons = []types.DecisionReason{types.ReasonScheduled}
		}
		require.NoError(t, prov.PutDecision(ctx, dec))
	}

	got, err := prov.GetDecision(ctx, "ct-dec-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ct-dec-1", got.DecisionID)
	assert.False(t, got.Triggered)

	latest, err := prov.GetLatestDecision(ctx, "ct-model-dec")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "ct-dec-3", latest.DecisionID)

	decisions, err := prov.ListDecisions(ctx, "ct-model-dec", 2)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, "ct-dec-3", decisions[0].DecisionID)
	assert.Equal(t, "ct-dec-2", decisions[1].DecisionID)

	// Resolving rewrites the truth record in place
	resolved := *got
	now := time.Now()
	resolved.Resolved = true
	resolved.ResolvedAt = &now
	resolved.Resolution = "completed"
	require.NoError(t, prov.PutDecision(ctx, resolved))

	got, err = prov.GetDecision(ctx, "ct-dec-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Resolved)
	assert.Equal(t, "completed", got.Resolution)

	// Not found returns (nil, nil)
	got, err = prov.GetDecision(ctx, "ct-nonexistent-dec")
	require.NoError(t, err)
	assert.Nil(t, got)

	latest, err = prov.GetLatestDecision(ctx, "ct-nonexistent-model")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

// TestStaleness verifies set, clear, and default-false behavior.
func TestStaleness(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	// Unset defaults to false
	stale, err := prov.GetStaleness(ctx, "ct-model-stale", provider.ComponentDrift)
	require.NoError(t, err)
	assert.False(t, stale)

	require.NoError(t, prov.SetStaleness(ctx, "ct-model-stale", provider.ComponentDrift, true))
	stale, err = prov.GetStaleness(ctx, "ct-model-stale", provider.ComponentDrift)
	require.NoError(t, err)
	assert.True(t, stale)

	// Components are independent
	stale, err = prov.GetStaleness(ctx, "ct-model-stale", provider.ComponentPerformance)
	require.NoError(t, err)
	assert.False(t, stale)

	require.NoError(t, prov.SetStaleness(ctx, "ct-model-stale", provider.ComponentDrift, false))
	stale, err = prov.GetStaleness(ctx, "ct-model-stale", provider.ComponentDrift)
	require.NoError(t, err)
	assert.False(t, stale)
}
