package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/driftlock-systems/driftlock/internal/decision"
	"github.com/driftlock-systems/driftlock/internal/drift"
	"github.com/driftlock-systems/driftlock/internal/perf"
	"github.com/driftlock-systems/driftlock/internal/provider"
	"github.com/driftlock-systems/driftlock/internal/queue"
	"github.com/driftlock-systems/driftlock/internal/rollout"
	"github.com/driftlock-systems/driftlock/internal/testutil"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// harness wires a Monitor with a mock provider and live collaborators.
type harness struct {
	prov    *testutil.MockProvider
	reg     *perf.Registry
	rollout *rollout.Controller
	monitor *Monitor
}

func setupMonitor(t *testing.T) *harness {
	t.Helper()
	prov := testutil.NewMockProvider()
	reg := perf.NewRegistry(types.PerformanceConfig{MinMatchedPairs: 1})
	logger := testLogger()

	det := drift.New(prov, types.DriftConfig{MinSampleSize: 5}, nil, logger)
	eng := decision.New(prov, queue.NewMemoryQueue(), types.DecisionConfig{}, types.PerformanceConfig{}, nil, logger)
	ctrl := rollout.New(prov, reg, types.RolloutConfig{}, nil, logger)

	return &harness{
		prov:    prov,
		reg:     reg,
		rollout: ctrl,
		monitor: New(prov, det, reg, eng, ctrl, types.MonitorConfig{Interval: "20ms"}, logger),
	}
}

// seedActiveModel registers an ACTIVE model with a numeric snapshot and a
// prediction window large enough to evaluate drift.
func seedActiveModel(t *testing.T, prov *testutil.MockProvider, id string, predictions int) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, prov.PutModelVersion(ctx, types.ModelVersion{
		ID:        id,
		Status:    types.ModelActive,
		TrainedAt: now,
		Metrics:   types.MetricsSnapshot{Accuracy: 0.9},
		Version:   1,
		CreatedAt: now,
	}))
	require.NoError(t, prov.PutFeatureSnapshot(ctx, types.FeatureSnapshot{
		FeatureName:    "score",
		Kind:           types.FeatureNumeric,
		BinEdges:       []float64{0, 0.5, 1},
		ReferenceFreqs: []float64{0.5, 0.5},
		ModelVersion:   id,
	}))
	seedPredictions(t, prov, id, predictions)
}

func seedPredictions(t *testing.T, prov *testutil.MockProvider, id string, n int) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < n; i++ {
		require.NoError(t, prov.PutPrediction(ctx, types.PredictionRecord{
			ID:             fmt.Sprintf("%s-pred-%d", id, i),
			Timestamp:      now.Add(time.Duration(i) * time.Second),
			Features:       map[string]float64{"score": float64(i%2)*0.5 + 0.25},
			PredictedLabel: "1",
			ModelVersion:   id,
		}))
	}
}

func monitorEvents(prov *testutil.MockProvider, model string) []types.Event {
	var out []types.Event
	for _, e := range prov.EventsOfKind(types.EventMonitorEvaluation) {
		if e.ModelVersion == model {
			out = append(out, e)
		}
	}
	return out
}

func TestPollEvaluatesActiveModel(t *testing.T) {
	h := setupMonitor(t)
	ctx := context.Background()
	seedActiveModel(t, h.prov, "m-1", 10)

	// A matched pair so the performance snapshot has data.
	h.reg.Observe(types.PredictionRecord{ID: "p-1", Timestamp: time.Now(), PredictedLabel: "1", ModelVersion: "m-1"})
	require.True(t, h.reg.Resolve(types.GroundTruthRecord{ID: "p-1", ActualLabel: "1", ObservedAt: time.Now()}))

	h.monitor.poll(ctx)

	report, err := h.prov.GetLatestDriftReport(ctx, "m-1")
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 10, report.SampleSize)

	summary, err := h.prov.GetLatestPerformanceSummary(ctx, "m-1")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.MatchedPairs)

	dec, err := h.prov.GetLatestDecision(ctx, "m-1")
	require.NoError(t, err)
	require.NotNil(t, dec)
	assert.False(t, dec.Triggered)

	events := monitorEvents(h.prov, "m-1")
	require.Len(t, events, 1)
	assert.Equal(t, string(types.ModelActive), events[0].Status)

	// The cycle lock is released after the tick.
	acquired, err := h.prov.AcquireLock(ctx, "monitor:m-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestPollSkipsNonLiveModels(t *testing.T) {
	h := setupMonitor(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, h.prov.PutModelVersion(ctx, types.ModelVersion{
		ID: "m-cand", Status: types.ModelCandidate, CreatedAt: now,
	}))
	require.NoError(t, h.prov.PutModelVersion(ctx, types.ModelVersion{
		ID: "m-old", Status: types.ModelRetired, CreatedAt: now,
	}))

	h.monitor.poll(ctx)

	assert.Empty(t, h.prov.EventsOfKind(types.EventMonitorEvaluation))
}

func TestTickSkipsWhenLockHeld(t *testing.T) {
	h := setupMonitor(t)
	seedActiveModel(t, h.prov, "m-1", 10)
	h.prov.HoldLock("monitor:m-1")

	h.monitor.poll(context.Background())

	assert.Empty(t, monitorEvents(h.prov, "m-1"))
	report, err := h.prov.GetLatestDriftReport(context.Background(), "m-1")
	require.NoError(t, err)
	assert.Nil(t, report)
}

func TestInsufficientWindowIsNotAnError(t *testing.T) {
	h := setupMonitor(t)
	ctx := context.Background()
	seedActiveModel(t, h.prov, "m-1", 2) // below the 5-sample floor

	h.monitor.poll(ctx)

	stale, err := h.prov.GetStaleness(ctx, "m-1", provider.ComponentDrift)
	require.NoError(t, err)
	assert.False(t, stale)

	events := monitorEvents(h.prov, "m-1")
	require.Len(t, events, 1)
	assert.EqualValues(t, 0, events[0].Details["errors"])
}

func TestDriftFailureSetsStalenessUntilRecovery(t *testing.T) {
	h := setupMonitor(t)
	ctx := context.Background()
	now := time.Now()

	// Enough predictions but no snapshots: evaluation fails outright.
	require.NoError(t, h.prov.PutModelVersion(ctx, types.ModelVersion{
		ID: "m-1", Status: types.ModelActive, TrainedAt: now, CreatedAt: now,
	}))
	seedPredictions(t, h.prov, "m-1", 10)

	h.monitor.poll(ctx)

	stale, err := h.prov.GetStaleness(ctx, "m-1", provider.ComponentDrift)
	require.NoError(t, err)
	assert.True(t, stale)

	events := monitorEvents(h.prov, "m-1")
	require.Len(t, events, 1)
	assert.EqualValues(t, 1, events[0].Details["errors"])

	// Storing a snapshot recovers the next cycle and clears the marker.
	require.NoError(t, h.prov.PutFeatureSnapshot(ctx, types.FeatureSnapshot{
		FeatureName:    "score",
		Kind:           types.FeatureNumeric,
		BinEdges:       []float64{0, 0.5, 1},
		ReferenceFreqs: []float64{0.5, 0.5},
		ModelVersion:   "m-1",
	}))
	h.monitor.poll(ctx)

	stale, err = h.prov.GetStaleness(ctx, "m-1", provider.ComponentDrift)
	require.NoError(t, err)
	assert.False(t, stale)
}

func TestPollEvaluatesSoakingCanary(t *testing.T) {
	h := setupMonitor(t)
	ctx := context.Background()

	_, err := h.rollout.Register(ctx, "m-1", time.Now(), types.MetricsSnapshot{Accuracy: 0.9})
	require.NoError(t, err)
	_, err = h.rollout.StartCanary(ctx, "m-1")
	require.NoError(t, err)
	_, err = h.rollout.Promote(ctx, "m-1")
	require.NoError(t, err)

	_, err = h.rollout.Register(ctx, "m-2", time.Now(), types.MetricsSnapshot{Accuracy: 0.91})
	require.NoError(t, err)
	_, err = h.rollout.StartCanary(ctx, "m-2")
	require.NoError(t, err)

	// Seed drift inputs for both so the cycle is clean end to end.
	for _, id := range []string{"m-1", "m-2"} {
		require.NoError(t, h.prov.PutFeatureSnapshot(ctx, types.FeatureSnapshot{
			FeatureName:    "score",
			Kind:           types.FeatureNumeric,
			BinEdges:       []float64{0, 0.5, 1},
			ReferenceFreqs: []float64{0.5, 0.5},
			ModelVersion:   id,
		}))
		seedPredictions(t, h.prov, id, 10)
	}

	h.monitor.poll(ctx)

	// Default soak is 24h: the canary is still soaking and stays a canary.
	canary, err := h.prov.GetModelVersion(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, types.ModelCanary, canary.Status)

	events := monitorEvents(h.prov, "m-2")
	require.Len(t, events, 1)
	assert.Equal(t, string(types.ModelCanary), events[0].Status)
	assert.EqualValues(t, 0, events[0].Details["errors"])
}

func TestStartStop(t *testing.T) {
	h := setupMonitor(t)
	seedActiveModel(t, h.prov, "m-1", 10)

	h.monitor.Start(context.Background())

	// The first poll runs immediately on start.
	require.Eventually(t, func() bool {
		return len(monitorEvents(h.prov, "m-1")) > 0
	}, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h.monitor.Stop(stopCtx)
}
