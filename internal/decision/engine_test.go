package decision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlock-systems/driftlock/internal/queue"
	"github.com/driftlock-systems/driftlock/internal/testutil"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

const testModel = "model-2026-01"

func newEngine(prov *testutil.MockProvider, q queue.Queue) *Engine {
	return New(prov, q, types.DecisionConfig{}, types.PerformanceConfig{DegradationThreshold: 0.05}, nil, nil)
}

func registerModel(t *testing.T, prov *testutil.MockProvider, trainedAt time.Time, baselineAccuracy float64) {
	t.Helper()
	require.NoError(t, prov.PutModelVersion(context.Background(), types.ModelVersion{
		ID:        testModel,
		TrainedAt: trainedAt,
		Status:    types.ModelActive,
		Metrics:   types.MetricsSnapshot{Accuracy: baselineAccuracy},
		Version:   1,
		CreatedAt: trainedAt,
	}))
}

func TestEvaluateNoSignalsNoTrigger(t *testing.T) {
	prov := testutil.NewMockProvider()
	q := queue.NewMemoryQueue()
	registerModel(t, prov, time.Now().Add(-24*time.Hour), 0.90)

	dec, err := newEngine(prov, q).Evaluate(context.Background(), testModel)
	require.NoError(t, err)

	assert.False(t, dec.Triggered)
	assert.Empty(t, dec.Reasons)
	assert.Empty(t, q.Jobs())
}

func TestEvaluateDegradationTriggers(t *testing.T) {
	prov := testutil.NewMockProvider()
	q := queue.NewMemoryQueue()
	ctx := context.Background()
	registerModel(t, prov, time.Now().Add(-24*time.Hour), 0.89)

	// Live accuracy 0.83 against baseline 0.89: the 0.06 drop exceeds the
	// 0.05 threshold.
	require.NoError(t, prov.PutPerformanceSummary(ctx, types.PerformanceSummary{
		ModelVersion: testModel,
		MatchedPairs: 500,
		Accuracy:     0.83,
		GeneratedAt:  time.Now(),
	}))

	dec, err := newEngine(prov, q).Evaluate(ctx, testModel)
	require.NoError(t, err)

	assert.True(t, dec.Triggered)
	assert.Equal(t, []types.DecisionReason{types.ReasonPerformanceDegradation}, dec.Reasons)
	assert.NotEmpty(t, dec.DecisionID)

	jobs := q.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, dec.DecisionID, jobs[0].DecisionID)
	assert.Equal(t, testModel, jobs[0].ModelVersion)

	assert.NotEmpty(t, prov.EventsOfKind(types.EventRetrainTriggered))
	assert.NotEmpty(t, prov.EventsOfKind(types.EventRetrainEnqueued))
	assert.NotEmpty(t, prov.EventsOfKind(types.EventPerformanceDegraded))
}

func TestEvaluateDegradationWithinThresholdNoTrigger(t *testing.T) {
	prov := testutil.NewMockProvider()
	q := queue.NewMemoryQueue()
	ctx := context.Background()
	registerModel(t, prov, time.Now().Add(-24*time.Hour), 0.89)

	require.NoError(t, prov.PutPerformanceSummary(ctx, types.PerformanceSummary{
		ModelVersion: testModel,
		Accuracy:     0.86, // 0.03 drop, below threshold
		GeneratedAt:  time.Now(),
	}))

	dec, err := newEngine(prov, q).Evaluate(ctx, testModel)
	require.NoError(t, err)
	assert.False(t, dec.Triggered)
}

func TestEvaluateDegradationAtThresholdNoTrigger(t *testing.T) {
	prov := testutil.NewMockProvider()
	q := queue.NewMemoryQueue()
	ctx := context.Background()
	// Binary-exact values so the drop equals the threshold exactly.
	registerModel(t, prov, time.Now().Add(-24*time.Hour), 0.875)

	require.NoError(t, prov.PutPerformanceSummary(ctx, types.PerformanceSummary{
		ModelVersion: testModel,
		MatchedPairs: 500,
		Accuracy:     0.8125,
		GeneratedAt:  time.Now(),
	}))

	// A drop of exactly the threshold is tolerated; only a strictly larger
	// drop triggers.
	eng := New(prov, q, types.DecisionConfig{}, types.PerformanceConfig{DegradationThreshold: 0.0625}, nil, nil)
	dec, err := eng.Evaluate(ctx, testModel)
	require.NoError(t, err)
	assert.False(t, dec.Triggered)
	assert.Empty(t, dec.Reasons)
	assert.Empty(t, q.Jobs())
}

func TestEvaluateRecordsAllMatchingReasons(t *testing.T) {
	prov := testutil.NewMockProvider()
	q := queue.NewMemoryQueue()
	ctx := context.Background()
	// Trained far enough back that the scheduled signal also fires.
	registerModel(t, prov, time.Now().Add(-31*24*time.Hour), 0.89)

	require.NoError(t, prov.PutDriftReport(ctx, types.DriftReport{
		ModelVersion: testModel,
		EvaluatedAt:  time.Now(),
		Features:     map[string]types.FeatureDrift{"amount": {PSI: 0.4, Status: types.DriftDrift}},
		Aggregate:    types.DriftDrift,
	}))
	require.NoError(t, prov.PutPerformanceSummary(ctx, types.PerformanceSummary{
		ModelVersion: testModel,
		Accuracy:     0.80,
		GeneratedAt:  time.Now(),
	}))

	dec, err := newEngine(prov, q).Evaluate(ctx, testModel)
	require.NoError(t, err)

	assert.True(t, dec.Triggered)
	assert.Equal(t, []types.DecisionReason{
		types.ReasonDistributionDrift,
		types.ReasonPerformanceDegradation,
		types.ReasonScheduled,
	}, dec.Reasons)
	assert.Equal(t, []string{"amount"}, dec.Details["driftedFeatures"])
	require.Len(t, q.Jobs(), 1)
}

func TestEvaluateOpenDecisionDebounces(t *testing.T) {
	prov := testutil.NewMockProvider()
	q := queue.NewMemoryQueue()
	ctx := context.Background()
	registerModel(t, prov, time.Now().Add(-24*time.Hour), 0.89)
	require.NoError(t, prov.PutPerformanceSummary(ctx, types.PerformanceSummary{
		ModelVersion: testModel,
		Accuracy:     0.80,
		GeneratedAt:  time.Now(),
	}))

	eng := newEngine(prov, q)
	first, err := eng.Evaluate(ctx, testModel)
	require.NoError(t, err)
	require.True(t, first.Triggered)

	// Signals still firing, but the open decision debounces: same decision
	// back, no second job.
	second, err := eng.Evaluate(ctx, testModel)
	require.NoError(t, err)
	assert.Equal(t, first.DecisionID, second.DecisionID)
	assert.Len(t, q.Jobs(), 1)
}

func TestEvaluateResolvedDecisionReArms(t *testing.T) {
	prov := testutil.NewMockProvider()
	q := queue.NewMemoryQueue()
	ctx := context.Background()
	registerModel(t, prov, time.Now().Add(-24*time.Hour), 0.89)
	require.NoError(t, prov.PutPerformanceSummary(ctx, types.PerformanceSummary{
		ModelVersion: testModel,
		Accuracy:     0.80,
		GeneratedAt:  time.Now(),
	}))

	eng := newEngine(prov, q)
	first, err := eng.Evaluate(ctx, testModel)
	require.NoError(t, err)
	require.NoError(t, eng.Resolve(ctx, first.DecisionID, "retrained as model-2026-02"))

	second, err := eng.Evaluate(ctx, testModel)
	require.NoError(t, err)
	assert.True(t, second.Triggered)
	assert.NotEqual(t, first.DecisionID, second.DecisionID)
	assert.Len(t, q.Jobs(), 2)
}

func TestEvaluateLeaseConflict(t *testing.T) {
	prov := testutil.NewMockProvider()
	registerModel(t, prov, time.Now(), 0.9)
	prov.HoldLock("decision:" + testModel)

	_, err := newEngine(prov, queue.NewMemoryQueue()).Evaluate(context.Background(), testModel)
	require.ErrorIs(t, err, ErrDecisionInFlight)
}

func TestEvaluateUnknownModel(t *testing.T) {
	prov := testutil.NewMockProvider()
	_, err := newEngine(prov, queue.NewMemoryQueue()).Evaluate(context.Background(), "missing")
	require.Error(t, err)
}

func TestResolveTwiceFails(t *testing.T) {
	prov := testutil.NewMockProvider()
	ctx := context.Background()
	registerModel(t, prov, time.Now().Add(-24*time.Hour), 0.89)
	require.NoError(t, prov.PutPerformanceSummary(ctx, types.PerformanceSummary{
		ModelVersion: testModel,
		Accuracy:     0.80,
		GeneratedAt:  time.Now(),
	}))

	eng := newEngine(prov, queue.NewMemoryQueue())
	dec, err := eng.Evaluate(ctx, testModel)
	require.NoError(t, err)

	require.NoError(t, eng.Resolve(ctx, dec.DecisionID, "done"))
	require.Error(t, eng.Resolve(ctx, dec.DecisionID, "done again"))
}

func TestCancelReArmsWithAuditTrail(t *testing.T) {
	prov := testutil.NewMockProvider()
	ctx := context.Background()
	registerModel(t, prov, time.Now().Add(-24*time.Hour), 0.89)
	require.NoError(t, prov.PutPerformanceSummary(ctx, types.PerformanceSummary{
		ModelVersion: testModel,
		Accuracy:     0.80,
		GeneratedAt:  time.Now(),
	}))

	eng := newEngine(prov, queue.NewMemoryQueue())
	dec, err := eng.Evaluate(ctx, testModel)
	require.NoError(t, err)

	require.NoError(t, eng.Cancel(ctx, dec.DecisionID, "false positive"))
	assert.NotEmpty(t, prov.EventsOfKind(types.EventDecisionCancelled))

	stored, err := prov.GetDecision(ctx, dec.DecisionID)
	require.NoError(t, err)
	assert.True(t, stored.Resolved)
	assert.Equal(t, "false positive", stored.Resolution)
}
