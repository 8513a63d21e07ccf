// Package drift implements PSI-based input drift detection against
// training-time feature snapshots.
package drift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/driftlock-systems/driftlock/internal/metrics"
	"github.com/driftlock-systems/driftlock/internal/provider"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

// ErrInsufficientData is returned when the current window is too small for a
// statistically meaningful PSI. It is surfaced, never silently approximated.
var ErrInsufficientData = errors.New("insufficient data for drift evaluation")

// Detector defaults applied when the config leaves fields zero.
const (
	defaultEpsilon        = 1e-4
	defaultMinSampleSize  = 100
	defaultWatchThreshold = 0.1
	defaultDriftThreshold = 0.25
	defaultWindowLimit    = 5000
)

// Detector compares a live window of inputs against the frozen feature
// snapshots for a model version and produces per-feature and aggregate
// divergence reports. It never mutates snapshots.
type Detector struct {
	provider provider.Provider
	config   types.DriftConfig
	alertFn  func(types.Alert)
	logger   *slog.Logger
}

// New creates a Detector, filling config defaults for zero fields.
func New(prov provider.Provider, cfg types.DriftConfig, alertFn func(types.Alert), logger *slog.Logger) *Detector {
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = defaultEpsilon
	}
	if cfg.MinSampleSize <= 0 {
		cfg.MinSampleSize = defaultMinSampleSize
	}
	if cfg.WatchThreshold <= 0 {
		cfg.WatchThreshold = defaultWatchThreshold
	}
	if cfg.DriftThreshold <= 0 {
		cfg.DriftThreshold = defaultDriftThreshold
	}
	if cfg.WindowLimit <= 0 {
		cfg.WindowLimit = defaultWindowLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		provider: prov,
		config:   cfg,
		alertFn:  alertFn,
		logger:   logger,
	}
}

// Evaluate computes a DriftReport for the model version over the current
// prediction window, persists it, and fires an alert on any transition into
// DRIFT. Fails with ErrInsufficientData below the configured sample floor.
func (d *Detector) Evaluate(ctx context.Context, modelVersion string) (*types.DriftReport, error) {
	snapshots, err := d.provider.GetFeatureSnapshots(ctx, modelVersion)
	if err != nil {
		return nil, fmt.Errorf("loading snapshots for %q: %w", modelVersion, err)
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("no feature snapshots stored for %q", modelVersion)
	}

	window, err := d.provider.ListPredictions(ctx, modelVersion, d.config.WindowLimit)
	if err != nil {
		return nil, fmt.Errorf("loading prediction window for %q: %w", modelVersion, err)
	}
	if len(window) < d.config.MinSampleSize {
		return nil, fmt.Errorf("%w: %d samples, need %d", ErrInsufficientData, len(window), d.config.MinSampleSize)
	}

	report := &types.DriftReport{
		ModelVersion: modelVersion,
		EvaluatedAt:  time.Now(),
		Features:     make(map[string]types.FeatureDrift, len(snapshots)),
		SampleSize:   len(window),
	}

	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	for _, snap := range snapshots {
		g.Go(func() error {
			fd := d.evaluateFeature(snap, window)
			mu.Lock()
			report.Features[snap.FeatureName] = fd
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Aggregate = aggregate(report.Features)

	metrics.DriftEvaluations.Add(1)
	d.logStatuses(modelVersion, report)
	d.alertOnTransition(ctx, modelVersion, report)

	if err := d.provider.PutDriftReport(ctx, *report); err != nil {
		return report, fmt.Errorf("storing drift report: %w", err)
	}
	_ = d.provider.AppendEvent(ctx, types.Event{
		Kind:         types.EventDriftEvaluated,
		ModelVersion: modelVersion,
		Status:       string(report.Aggregate),
		Details:      map[string]interface{}{"sampleSize": report.SampleSize},
		Timestamp:    report.EvaluatedAt,
	})
	return report, nil
}

// evaluateFeature computes the PSI and classification for one snapshot.
// A feature absent from every record in the window is UNKNOWN: it is excluded
// from aggregation but still appears in the report.
func (d *Detector) evaluateFeature(snap types.FeatureSnapshot, window []types.PredictionRecord) types.FeatureDrift {
	switch snap.Kind {
	case types.FeatureCategorical:
		values := make([]string, 0, len(window))
		for _, rec := range window {
			if v, ok := rec.Categoricals[snap.FeatureName]; ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			return types.FeatureDrift{Status: types.DriftUnknown, Reason: "feature absent from current window"}
		}
		actual, other := categoricalProportions(values, snap.Categories)
		// The "other" bucket has expected frequency zero; smoothing keeps the
		// logarithm finite while still penalizing unseen categories.
		actual = append(actual, other)
		expected := append(append([]float64(nil), snap.ReferenceFreqs...), 0)
		score := psi(actual, expected, d.config.Epsilon)
		return types.FeatureDrift{PSI: score, Status: d.classify(score)}

	default: // numeric
		values := make([]float64, 0, len(window))
		for _, rec := range window {
			if v, ok := rec.Features[snap.FeatureName]; ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			return types.FeatureDrift{Status: types.DriftUnknown, Reason: "feature absent from current window"}
		}
		if len(snap.BinEdges) < 2 || len(snap.BinEdges)-1 != len(snap.ReferenceFreqs) {
			return types.FeatureDrift{Status: types.DriftUnknown, Reason: "snapshot bin edges inconsistent with reference frequencies"}
		}
		actual := numericProportions(values, snap.BinEdges)
		score := psi(actual, snap.ReferenceFreqs, d.config.Epsilon)
		return types.FeatureDrift{PSI: score, Status: d.classify(score)}
	}
}

func (d *Detector) classify(score float64) types.DriftStatus {
	switch {
	case score >= d.config.DriftThreshold:
		return types.DriftDrift
	case score >= d.config.WatchThreshold:
		return types.DriftWatch
	default:
		return types.DriftStable
	}
}

// aggregate folds per-feature statuses: DRIFT if any feature drifted, else
// WATCH if any is watching, else STABLE. UNKNOWN features are excluded.
func aggregate(features map[string]types.FeatureDrift) types.DriftStatus {
	status := types.DriftStable
	for _, fd := range features {
		switch fd.Status {
		case types.DriftDrift:
			return types.DriftDrift
		case types.DriftWatch:
			status = types.DriftWatch
		}
	}
	return status
}

func (d *Detector) logStatuses(modelVersion string, report *types.DriftReport) {
	names := make([]string, 0, len(report.Features))
	for name := range report.Features {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fd := report.Features[name]
		if fd.Status == types.DriftUnknown {
			d.logger.Warn("feature missing from window", "model", modelVersion, "feature", name, "reason", fd.Reason)
			continue
		}
		d.logger.Debug("feature evaluated", "model", modelVersion, "feature", name, "psi", fd.PSI, "status", fd.Status)
	}
}

// alertOnTransition fires alerts for the aggregate entering DRIFT and for
// each feature newly classified as DRIFT since the previous report.
func (d *Detector) alertOnTransition(ctx context.Context, modelVersion string, report *types.DriftReport) {
	previous, err := d.provider.GetLatestDriftReport(ctx, modelVersion)
	if err != nil {
		d.logger.Error("failed to load previous drift report", "model", modelVersion, "error", err)
		previous = nil
	}

	if report.Aggregate == types.DriftDrift && (previous == nil || previous.Aggregate != types.DriftDrift) {
		metrics.DriftDetected.Add(1)
		d.fireAlert(types.Alert{
			Level:        types.AlertLevelWarning,
			ModelVersion: modelVersion,
			Message:      fmt.Sprintf("Model %s input distribution drifted", modelVersion),
			Details:      map[string]interface{}{"sampleSize": report.SampleSize},
			Timestamp:    report.EvaluatedAt,
		})
		_ = d.provider.AppendEvent(ctx, types.Event{
			Kind:         types.EventDriftDetected,
			ModelVersion: modelVersion,
			Status:       string(types.DriftDrift),
			Timestamp:    report.EvaluatedAt,
		})
	}

	for name, fd := range report.Features {
		if fd.Status != types.DriftDrift {
			continue
		}
		if previous != nil {
			if prev, ok := previous.Features[name]; ok && prev.Status == types.DriftDrift {
				continue // already alerted
			}
		}
		d.fireAlert(types.Alert{
			Level:        types.AlertLevelWarning,
			ModelVersion: modelVersion,
			Feature:      name,
			Message:      fmt.Sprintf("Feature %s drifted (PSI %.4f)", name, fd.PSI),
			Timestamp:    report.EvaluatedAt,
		})
	}
}

func (d *Detector) fireAlert(alert types.Alert) {
	if d.alertFn != nil {
		d.alertFn(alert)
	}
}
