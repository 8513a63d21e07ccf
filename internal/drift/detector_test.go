package drift

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlock-systems/driftlock/internal/testutil"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

const testModel = "model-2026-01"

// seedNumeric stores a numeric snapshot and a prediction window whose values
// land in bins with the given proportions (n samples total).
func seedNumeric(t *testing.T, prov *testutil.MockProvider, proportions []float64, n int) {
	t.Helper()
	ctx := context.Background()

	edges := make([]float64, len(proportions)+1)
	for i := range edges {
		edges[i] = float64(i)
	}
	reference := []float64{0.25, 0.25, 0.25, 0.25}
	require.Len(t, proportions, len(reference))

	require.NoError(t, prov.PutFeatureSnapshot(ctx, types.FeatureSnapshot{
		FeatureName:    "amount",
		Kind:           types.FeatureNumeric,
		BinEdges:       edges,
		ReferenceFreqs: reference,
		BuiltAt:        time.Now(),
		ModelVersion:   testModel,
	}))

	id := 0
	for bin, p := range proportions {
		count := int(math.Round(p * float64(n)))
		for i := 0; i < count; i++ {
			id++
			require.NoError(t, prov.PutPrediction(ctx, types.PredictionRecord{
				ID:           fmt.Sprintf("p-%d", id),
				Timestamp:    time.Now(),
				Features:     map[string]float64{"amount": float64(bin) + 0.5},
				ModelVersion: testModel,
			}))
		}
	}
}

func TestEvaluateIdenticalDistributionIsStable(t *testing.T) {
	prov := testutil.NewMockProvider()
	seedNumeric(t, prov, []float64{0.25, 0.25, 0.25, 0.25}, 400)

	det := New(prov, types.DriftConfig{}, nil, nil)
	report, err := det.Evaluate(context.Background(), testModel)
	require.NoError(t, err)

	fd := report.Features["amount"]
	assert.InDelta(t, 0, fd.PSI, 1e-6)
	assert.Equal(t, types.DriftStable, fd.Status)
	assert.Equal(t, types.DriftStable, report.Aggregate)
	assert.Equal(t, 400, report.SampleSize)
}

func TestEvaluateShiftedDistributionDrifts(t *testing.T) {
	prov := testutil.NewMockProvider()
	// Reference is uniform; the live window is heavily skewed into the last
	// two bins. PSI for [0.10 0.15 0.35 0.40] vs uniform is ≈ 0.2927.
	seedNumeric(t, prov, []float64{0.10, 0.15, 0.35, 0.40}, 400)

	var alerts []types.Alert
	det := New(prov, types.DriftConfig{}, func(a types.Alert) { alerts = append(alerts, a) }, nil)
	report, err := det.Evaluate(context.Background(), testModel)
	require.NoError(t, err)

	fd := report.Features["amount"]
	assert.InDelta(t, 0.2927, fd.PSI, 0.01)
	assert.Equal(t, types.DriftDrift, fd.Status)
	assert.Equal(t, types.DriftDrift, report.Aggregate)

	// Aggregate transition into DRIFT plus the newly drifted feature.
	require.Len(t, alerts, 2)
	assert.NotEmpty(t, prov.EventsOfKind(types.EventDriftDetected))
}

func TestEvaluateModerateShiftIsWatch(t *testing.T) {
	prov := testutil.NewMockProvider()
	seedNumeric(t, prov, []float64{0.20, 0.20, 0.30, 0.30}, 400)

	det := New(prov, types.DriftConfig{WatchThreshold: 0.03, DriftThreshold: 0.25}, nil, nil)
	report, err := det.Evaluate(context.Background(), testModel)
	require.NoError(t, err)

	assert.Equal(t, types.DriftWatch, report.Features["amount"].Status)
	assert.Equal(t, types.DriftWatch, report.Aggregate)
}

func TestEvaluateInsufficientData(t *testing.T) {
	prov := testutil.NewMockProvider()
	seedNumeric(t, prov, []float64{0.25, 0.25, 0.25, 0.25}, 40)

	det := New(prov, types.DriftConfig{MinSampleSize: 100}, nil, nil)
	_, err := det.Evaluate(context.Background(), testModel)
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestEvaluateNoSnapshots(t *testing.T) {
	prov := testutil.NewMockProvider()
	det := New(prov, types.DriftConfig{}, nil, nil)
	_, err := det.Evaluate(context.Background(), testModel)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientData)
}

func TestEvaluateAbsentFeatureIsUnknown(t *testing.T) {
	prov := testutil.NewMockProvider()
	ctx := context.Background()
	seedNumeric(t, prov, []float64{0.25, 0.25, 0.25, 0.25}, 400)

	// Snapshot for a feature no record carries.
	require.NoError(t, prov.PutFeatureSnapshot(ctx, types.FeatureSnapshot{
		FeatureName:    "ghost",
		Kind:           types.FeatureNumeric,
		BinEdges:       []float64{0, 1, 2},
		ReferenceFreqs: []float64{0.5, 0.5},
		ModelVersion:   testModel,
	}))

	det := New(prov, types.DriftConfig{}, nil, nil)
	report, err := det.Evaluate(ctx, testModel)
	require.NoError(t, err)

	assert.Equal(t, types.DriftUnknown, report.Features["ghost"].Status)
	// UNKNOWN features are excluded from the aggregate.
	assert.Equal(t, types.DriftStable, report.Aggregate)
}

func TestEvaluateCategoricalUnseenCategories(t *testing.T) {
	prov := testutil.NewMockProvider()
	ctx := context.Background()

	require.NoError(t, prov.PutFeatureSnapshot(ctx, types.FeatureSnapshot{
		FeatureName:    "country",
		Kind:           types.FeatureCategorical,
		Categories:     []string{"US", "DE"},
		ReferenceFreqs: []float64{0.6, 0.4},
		ModelVersion:   testModel,
	}))
	for i := 0; i < 200; i++ {
		country := "US"
		if i%2 == 0 {
			country = "BR" // unseen at training time
		}
		require.NoError(t, prov.PutPrediction(ctx, types.PredictionRecord{
			ID:           fmt.Sprintf("c-%d", i),
			Timestamp:    time.Now(),
			Categoricals: map[string]string{"country": country},
			ModelVersion: testModel,
		}))
	}

	det := New(prov, types.DriftConfig{}, nil, nil)
	report, err := det.Evaluate(ctx, testModel)
	require.NoError(t, err)

	// Half the traffic lands in the zero-expectation "other" bucket; that is
	// a massive divergence and must classify as DRIFT.
	fd := report.Features["country"]
	assert.Equal(t, types.DriftDrift, fd.Status)
	assert.Greater(t, fd.PSI, 1.0)
}

func TestEvaluateAlertsOnlyOnTransition(t *testing.T) {
	prov := testutil.NewMockProvider()
	seedNumeric(t, prov, []float64{0.10, 0.15, 0.35, 0.40}, 400)

	var alerts []types.Alert
	det := New(prov, types.DriftConfig{}, func(a types.Alert) { alerts = append(alerts, a) }, nil)
	ctx := context.Background()

	_, err := det.Evaluate(ctx, testModel)
	require.NoError(t, err)
	first := len(alerts)
	require.Greater(t, first, 0)

	// Second evaluation of the same still-drifted window: no new alerts.
	_, err = det.Evaluate(ctx, testModel)
	require.NoError(t, err)
	assert.Equal(t, first, len(alerts))
}

func TestPSIMonotoneInShift(t *testing.T) {
	expected := []float64{0.25, 0.25, 0.25, 0.25}
	mild := psi([]float64{0.22, 0.24, 0.26, 0.28}, expected, 1e-4)
	severe := psi([]float64{0.05, 0.10, 0.35, 0.50}, expected, 1e-4)
	assert.Greater(t, mild, 0.0)
	assert.Greater(t, severe, mild)
}

func TestNumericProportionsClampOutOfRange(t *testing.T) {
	// Values outside the edges fall into the outermost bins.
	props := numericProportions([]float64{-5, -1, 0.5, 1.5, 10, 99}, []float64{0, 1, 2})
	assert.InDelta(t, 0.5, props[0], 1e-9) // -5, -1, 0.5
	assert.InDelta(t, 0.5, props[1], 1e-9) // 1.5, 10, 99
}
