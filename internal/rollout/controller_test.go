package rollout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlock-systems/driftlock/internal/perf"
	"github.com/driftlock-systems/driftlock/internal/testutil"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

func newController(prov *testutil.MockProvider, reg *perf.Registry, cfg types.RolloutConfig) *Controller {
	if reg == nil {
		reg = perf.NewRegistry(types.PerformanceConfig{MinMatchedPairs: 1})
	}
	return New(prov, reg, cfg, nil, nil)
}

// promoteThroughCanary walks a registered candidate all the way to active.
func promoteThroughCanary(t *testing.T, c *Controller, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := c.StartCanary(ctx, id)
	require.NoError(t, err)
	_, err = c.Promote(ctx, id)
	require.NoError(t, err)
}

// feedPairs pushes n matched pairs with the given accuracy into the
// registry's tracker for a model.
func feedPairs(t *testing.T, reg *perf.Registry, model string, n int, accuracy float64) {
	t.Helper()
	correct := int(accuracy * float64(n))
	now := time.Now()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%d", model, i)
		reg.Observe(types.PredictionRecord{ID: id, Timestamp: now, PredictedLabel: "1", ModelVersion: model})
		actual := "1"
		if i >= correct {
			actual = "0"
		}
		require.True(t, reg.Resolve(types.GroundTruthRecord{ID: id, ActualLabel: actual, ObservedAt: now}))
	}
}

func TestRegisterCreatesCandidate(t *testing.T) {
	prov := testutil.NewMockProvider()
	c := newController(prov, nil, types.RolloutConfig{})

	mv, err := c.Register(context.Background(), "m-1", time.Now(), types.MetricsSnapshot{Accuracy: 0.9, F1: 0.88})
	require.NoError(t, err)
	assert.Equal(t, types.ModelCandidate, mv.Status)
	assert.Equal(t, 1, mv.Version)

	_, err = c.Register(context.Background(), "m-1", time.Now(), types.MetricsSnapshot{})
	require.Error(t, err)
}

func TestFirstModelPromotesWithoutActive(t *testing.T) {
	prov := testutil.NewMockProvider()
	c := newController(prov, nil, types.RolloutConfig{})
	ctx := context.Background()

	_, err := c.Register(ctx, "m-1", time.Now(), types.MetricsSnapshot{Accuracy: 0.9})
	require.NoError(t, err)
	promoteThroughCanary(t, c, "m-1")

	active, err := c.ActiveModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m-1", active.ID)
}

func TestOfflineGateRetiresWeakCandidate(t *testing.T) {
	prov := testutil.NewMockProvider()
	c := newController(prov, nil, types.RolloutConfig{Tolerance: 0.02})
	ctx := context.Background()

	_, err := c.Register(ctx, "m-1", time.Now(), types.MetricsSnapshot{Accuracy: 0.90, F1: 0.90})
	require.NoError(t, err)
	promoteThroughCanary(t, c, "m-1")

	// Candidate accuracy 0.85 against active 0.90 with tolerance 0.02:
	// below the gate, retired, never serves traffic.
	_, err = c.Register(ctx, "m-2", time.Now(), types.MetricsSnapshot{Accuracy: 0.85, F1: 0.90})
	require.NoError(t, err)
	_, err = c.StartCanary(ctx, "m-2")
	require.ErrorIs(t, err, ErrPromotionEvaluationFailed)

	weak, err := prov.GetModelVersion(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, types.ModelRetired, weak.Status)

	active, err := c.ActiveModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m-1", active.ID)
}

func TestOfflineGateWithinTolerancePasses(t *testing.T) {
	prov := testutil.NewMockProvider()
	c := newController(prov, nil, types.RolloutConfig{Tolerance: 0.02})
	ctx := context.Background()

	_, err := c.Register(ctx, "m-1", time.Now(), types.MetricsSnapshot{Accuracy: 0.90, F1: 0.90})
	require.NoError(t, err)
	promoteThroughCanary(t, c, "m-1")

	_, err = c.Register(ctx, "m-2", time.Now(), types.MetricsSnapshot{Accuracy: 0.89, F1: 0.89})
	require.NoError(t, err)
	mv, err := c.StartCanary(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, types.ModelCanary, mv.Status)
	assert.NotNil(t, mv.CanaryStartedAt)
}

func TestPromoteDemotesPriorActive(t *testing.T) {
	prov := testutil.NewMockProvider()
	c := newController(prov, nil, types.RolloutConfig{})
	ctx := context.Background()

	_, err := c.Register(ctx, "m-1", time.Now(), types.MetricsSnapshot{Accuracy: 0.88})
	require.NoError(t, err)
	promoteThroughCanary(t, c, "m-1")
	_, err = c.Register(ctx, "m-2", time.Now(), types.MetricsSnapshot{Accuracy: 0.91})
	require.NoError(t, err)
	promoteThroughCanary(t, c, "m-2")

	active, err := c.ActiveModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m-2", active.ID)
	assert.Equal(t, "m-1", active.PreviousActive)

	old, err := prov.GetModelVersion(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, types.ModelRetired, old.Status)

	// Exactly one active.
	models, err := prov.ListModelVersions(ctx)
	require.NoError(t, err)
	actives := 0
	for _, m := range models {
		if m.Status == types.ModelActive {
			actives++
		}
	}
	assert.Equal(t, 1, actives)
}

func TestEvaluateCanaryStillSoaking(t *testing.T) {
	prov := testutil.NewMockProvider()
	c := newController(prov, nil, types.RolloutConfig{SoakDuration: "24h"})
	ctx := context.Background()

	_, err := c.Register(ctx, "m-1", time.Now(), types.MetricsSnapshot{Accuracy: 0.9})
	require.NoError(t, err)
	_, err = c.StartCanary(ctx, "m-1")
	require.NoError(t, err)

	promoted, err := c.EvaluateCanary(ctx, "m-1")
	require.NoError(t, err)
	assert.Nil(t, promoted)

	mv, err := prov.GetModelVersion(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, types.ModelCanary, mv.Status)
}

// setCanaryStarted backdates the canary start so the soak appears elapsed.
func setCanaryStarted(t *testing.T, prov *testutil.MockProvider, id string, startedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	mv, err := prov.GetModelVersion(ctx, id)
	require.NoError(t, err)
	mv.CanaryStartedAt = &startedAt
	require.NoError(t, prov.PutModelVersion(ctx, *mv))
}

func TestEvaluateCanaryUnderSampledExtendsSoak(t *testing.T) {
	prov := testutil.NewMockProvider()
	reg := perf.NewRegistry(types.PerformanceConfig{MinMatchedPairs: 1})
	c := newController(prov, reg, types.RolloutConfig{MinCanarySamples: 100})
	ctx := context.Background()

	_, err := c.Register(ctx, "m-1", time.Now(), types.MetricsSnapshot{Accuracy: 0.9})
	require.NoError(t, err)
	_, err = c.StartCanary(ctx, "m-1")
	require.NoError(t, err)
	setCanaryStarted(t, prov, "m-1", time.Now().Add(-48*time.Hour))

	feedPairs(t, reg, "m-1", 10, 1.0) // far below MinCanarySamples

	promoted, err := c.EvaluateCanary(ctx, "m-1")
	require.NoError(t, err)
	assert.Nil(t, promoted)

	mv, err := prov.GetModelVersion(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, types.ModelCanary, mv.Status)
	assert.Equal(t, 1, mv.SoakExtensions)
	assert.NotEmpty(t, prov.EventsOfKind(types.EventCanaryExtended))
}

func TestEvaluateCanaryPromotesHealthy(t *testing.T) {
	prov := testutil.NewMockProvider()
	reg := perf.NewRegistry(types.PerformanceConfig{MinMatchedPairs: 1})
	c := newController(prov, reg, types.RolloutConfig{MinCanarySamples: 100})
	ctx := context.Background()

	_, err := c.Register(ctx, "m-1", time.Now(), types.MetricsSnapshot{Accuracy: 0.9})
	require.NoError(t, err)
	_, err = c.StartCanary(ctx, "m-1")
	require.NoError(t, err)
	setCanaryStarted(t, prov, "m-1", time.Now().Add(-48*time.Hour))

	feedPairs(t, reg, "m-1", 200, 0.97)

	promoted, err := c.EvaluateCanary(ctx, "m-1")
	require.NoError(t, err)
	require.NotNil(t, promoted)
	assert.Equal(t, types.ModelActive, promoted.Status)
}

func TestEvaluateCanaryRegressionRetires(t *testing.T) {
	prov := testutil.NewMockProvider()
	reg := perf.NewRegistry(types.PerformanceConfig{MinMatchedPairs: 1})
	c := newController(prov, reg, types.RolloutConfig{MinCanarySamples: 100, ErrorRateThreshold: 0.10})
	ctx := context.Background()

	_, err := c.Register(ctx, "m-1", time.Now(), types.MetricsSnapshot{Accuracy: 0.9})
	require.NoError(t, err)
	_, err = c.StartCanary(ctx, "m-1")
	require.NoError(t, err)
	setCanaryStarted(t, prov, "m-1", time.Now().Add(-48*time.Hour))

	// 80% accuracy: error rate 0.20 breaches the 0.10 threshold.
	feedPairs(t, reg, "m-1", 200, 0.80)

	_, err = c.EvaluateCanary(ctx, "m-1")
	require.ErrorIs(t, err, ErrPromotionEvaluationFailed)

	mv, err := prov.GetModelVersion(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, types.ModelRetired, mv.Status)
}

func TestEvaluateCanaryBelowActiveWindowRetires(t *testing.T) {
	prov := testutil.NewMockProvider()
	reg := perf.NewRegistry(types.PerformanceConfig{MinMatchedPairs: 1})
	c := newController(prov, reg, types.RolloutConfig{
		MinCanarySamples:   100,
		Tolerance:          0.02,
		ErrorRateThreshold: 0.50,
	})
	ctx := context.Background()

	_, err := c.Register(ctx, "m-1", time.Now(), types.MetricsSnapshot{Accuracy: 0.90, F1: 0.90})
	require.NoError(t, err)
	promoteThroughCanary(t, c, "m-1")
	feedPairs(t, reg, "m-1", 200, 0.95)

	_, err = c.Register(ctx, "m-2", time.Now(), types.MetricsSnapshot{Accuracy: 0.90, F1: 0.90})
	require.NoError(t, err)
	_, err = c.StartCanary(ctx, "m-2")
	require.NoError(t, err)
	setCanaryStarted(t, prov, "m-2", time.Now().Add(-48*time.Hour))

	// Error rate 0.15 stays under the 0.50 gate; the canary fails purely by
	// trailing the active window's accuracy beyond tolerance.
	feedPairs(t, reg, "m-2", 200, 0.85)

	_, err = c.EvaluateCanary(ctx, "m-2")
	require.ErrorIs(t, err, ErrPromotionEvaluationFailed)

	mv, err := prov.GetModelVersion(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, types.ModelRetired, mv.Status)

	// The regressed canary never reaches active; the incumbent keeps serving.
	active, err := c.ActiveModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m-1", active.ID)
}

func TestRollbackRestoresPreviousActive(t *testing.T) {
	prov := testutil.NewMockProvider()
	c := newController(prov, nil, types.RolloutConfig{})
	ctx := context.Background()

	_, err := c.Register(ctx, "m-1", time.Now(), types.MetricsSnapshot{Accuracy: 0.88})
	require.NoError(t, err)
	promoteThroughCanary(t, c, "m-1")
	_, err = c.Register(ctx, "m-2", time.Now(), types.MetricsSnapshot{Accuracy: 0.91})
	require.NoError(t, err)
	promoteThroughCanary(t, c, "m-2")

	restored, err := c.Rollback(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, "m-1", restored.ID)
	assert.Equal(t, types.ModelActive, restored.Status)

	failed, err := prov.GetModelVersion(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, types.ModelRetired, failed.Status)
	assert.NotEmpty(t, prov.EventsOfKind(types.EventModelRolledBack))
}

func TestRollbackWithoutPreviousFails(t *testing.T) {
	prov := testutil.NewMockProvider()
	c := newController(prov, nil, types.RolloutConfig{})
	ctx := context.Background()

	_, err := c.Register(ctx, "m-1", time.Now(), types.MetricsSnapshot{Accuracy: 0.9})
	require.NoError(t, err)
	promoteThroughCanary(t, c, "m-1")

	_, err = c.Rollback(ctx, "m-1")
	require.Error(t, err)
}

func TestRouteSplitsDeterministically(t *testing.T) {
	prov := testutil.NewMockProvider()
	c := newController(prov, nil, types.RolloutConfig{CanaryPercent: 30})
	ctx := context.Background()

	_, err := c.Register(ctx, "m-1", time.Now(), types.MetricsSnapshot{Accuracy: 0.9})
	require.NoError(t, err)
	promoteThroughCanary(t, c, "m-1")
	_, err = c.Register(ctx, "m-2", time.Now(), types.MetricsSnapshot{Accuracy: 0.91})
	require.NoError(t, err)
	_, err = c.StartCanary(ctx, "m-2")
	require.NoError(t, err)

	canaryHits := 0
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("req-%d", i)
		first, err := c.Route(ctx, id)
		require.NoError(t, err)
		second, err := c.Route(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID) // same requester, same model
		if first.ID == "m-2" {
			canaryHits++
		}
	}
	// FNV spreads request IDs roughly uniformly over the 100 buckets.
	assert.InDelta(t, 300, canaryHits, 100)
}

func TestRouteNoCanaryAllTrafficActive(t *testing.T) {
	prov := testutil.NewMockProvider()
	c := newController(prov, nil, types.RolloutConfig{CanaryPercent: 30})
	ctx := context.Background()

	_, err := c.Register(ctx, "m-1", time.Now(), types.MetricsSnapshot{Accuracy: 0.9})
	require.NoError(t, err)
	promoteThroughCanary(t, c, "m-1")

	for i := 0; i < 50; i++ {
		mv, err := c.Route(ctx, fmt.Sprintf("req-%d", i))
		require.NoError(t, err)
		assert.Equal(t, "m-1", mv.ID)
	}
}

func TestTransitionTable(t *testing.T) {
	assert.NoError(t, Transition(types.ModelCandidate, types.ModelCanary))
	assert.NoError(t, Transition(types.ModelCandidate, types.ModelRetired))
	assert.NoError(t, Transition(types.ModelCanary, types.ModelActive))
	assert.NoError(t, Transition(types.ModelActive, types.ModelRetired))

	assert.ErrorIs(t, Transition(types.ModelCandidate, types.ModelActive), ErrInvalidTransition)
	assert.ErrorIs(t, Transition(types.ModelRetired, types.ModelActive), ErrInvalidTransition)
	assert.ErrorIs(t, Transition(types.ModelActive, types.ModelCanary), ErrInvalidTransition)

	assert.True(t, IsTerminal(types.ModelRetired))
	assert.False(t, IsTerminal(types.ModelCanary))
}
