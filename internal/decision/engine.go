// Package decision implements the retrain decision policy: fusing drift,
// degradation, and schedule signals into an auditable retrain trigger.
package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/driftlock-systems/driftlock/internal/metrics"
	"github.com/driftlock-systems/driftlock/internal/provider"
	"github.com/driftlock-systems/driftlock/internal/queue"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

// ErrDecisionInFlight is returned when another replica holds the evaluation
// lease for the model. Evaluation is serialized so concurrent replicas can
// never double-trigger.
var ErrDecisionInFlight = errors.New("decision evaluation already in flight")

// Engine defaults applied when the config leaves fields zero.
const (
	defaultMaxInterval          = 720 * time.Hour // 30 days
	defaultLeaseTTL             = 60 * time.Second
	defaultDegradationThreshold = 0.05
)

// Engine evaluates the retrain policy for a model version. Exactly one
// evaluation runs per model at a time (provider lease), and a triggered
// decision stays open until resolved, debouncing repeat triggers.
type Engine struct {
	provider provider.Provider
	queue    queue.Queue

	maxInterval          time.Duration
	leaseTTL             time.Duration
	degradationThreshold float64

	alertFn func(types.Alert)
	logger  *slog.Logger
}

// New creates an Engine, filling config defaults for zero fields. The
// degradation threshold comes from the performance config so drift and
// decision tuning stay in one place per concern.
func New(prov provider.Provider, q queue.Queue, cfg types.DecisionConfig, perfCfg types.PerformanceConfig, alertFn func(types.Alert), logger *slog.Logger) *Engine {
	e := &Engine{
		provider:             prov,
		queue:                q,
		maxInterval:          parseDurationDefault(cfg.MaxInterval, defaultMaxInterval),
		leaseTTL:             parseDurationDefault(cfg.LeaseTTL, defaultLeaseTTL),
		degradationThreshold: perfCfg.DegradationThreshold,
		alertFn:              alertFn,
		logger:               logger,
	}
	if e.degradationThreshold <= 0 {
		e.degradationThreshold = defaultDegradationThreshold
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Evaluate runs one retrain policy evaluation for the model version. All
// matching reasons are recorded, not just the first. Returns the open
// decision unchanged when one already debounces new triggers, and
// ErrDecisionInFlight when another replica holds the lease.
func (e *Engine) Evaluate(ctx context.Context, modelVersion string) (*types.RetrainDecision, error) {
	lockKey := "decision:" + modelVersion
	acquired, err := e.provider.AcquireLock(ctx, lockKey, e.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquiring decision lease for %q: %w", modelVersion, err)
	}
	if !acquired {
		metrics.DecisionConflicts.Add(1)
		return nil, ErrDecisionInFlight
	}
	defer func() { _ = e.provider.ReleaseLock(ctx, lockKey) }()

	model, err := e.provider.GetModelVersion(ctx, modelVersion)
	if err != nil {
		return nil, fmt.Errorf("loading model %q: %w", modelVersion, err)
	}
	if model == nil {
		return nil, fmt.Errorf("model %q not registered", modelVersion)
	}

	latest, err := e.provider.GetLatestDecision(ctx, modelVersion)
	if err != nil {
		return nil, fmt.Errorf("loading latest decision for %q: %w", modelVersion, err)
	}
	if latest != nil && latest.Triggered && !latest.Resolved {
		e.logger.Info("open decision debounces trigger", "model", modelVersion, "decision", latest.DecisionID)
		return latest, nil
	}

	now := time.Now()
	dec := types.RetrainDecision{
		DecisionID:   ulid.Make().String(),
		ModelVersion: modelVersion,
		EvaluatedAt:  now,
		Details:      map[string]interface{}{},
	}

	e.checkDrift(ctx, modelVersion, &dec)
	e.checkDegradation(ctx, model, &dec)
	e.checkSchedule(model, latest, now, &dec)
	dec.Triggered = len(dec.Reasons) > 0

	metrics.DecisionEvaluations.Add(1)

	if err := e.provider.PutDecision(ctx, dec); err != nil {
		return &dec, fmt.Errorf("storing decision: %w", err)
	}
	_ = e.provider.AppendEvent(ctx, types.Event{
		Kind:         types.EventDecisionEvaluated,
		ModelVersion: modelVersion,
		DecisionID:   dec.DecisionID,
		Status:       fmt.Sprintf("triggered=%t", dec.Triggered),
		Details:      map[string]interface{}{"reasons": dec.Reasons},
		Timestamp:    now,
	})

	if !dec.Triggered {
		return &dec, nil
	}

	metrics.RetrainsTriggered.Add(1)
	_ = e.provider.AppendEvent(ctx, types.Event{
		Kind:         types.EventRetrainTriggered,
		ModelVersion: modelVersion,
		DecisionID:   dec.DecisionID,
		Details:      map[string]interface{}{"reasons": dec.Reasons},
		Timestamp:    now,
	})
	e.fireAlert(types.Alert{
		Level:        types.AlertLevelWarning,
		ModelVersion: modelVersion,
		Message:      fmt.Sprintf("Retrain triggered for %s: %v", modelVersion, dec.Reasons),
		Details:      dec.Details,
		Timestamp:    now,
	})

	if err := e.enqueue(ctx, dec); err != nil {
		// The decision is already persisted and open; cancelling it re-arms
		// the trigger so the next evaluation enqueues again.
		e.logger.Error("failed to enqueue retrain job", "model", modelVersion, "decision", dec.DecisionID, "error", err)
		return &dec, nil
	}
	return &dec, nil
}

// Resolve closes an open decision after the training cycle completed.
func (e *Engine) Resolve(ctx context.Context, decisionID, resolution string) error {
	return e.close(ctx, decisionID, resolution, types.EventDecisionResolved)
}

// Cancel closes an open decision without a training cycle, re-arming the
// trigger.
func (e *Engine) Cancel(ctx context.Context, decisionID, reason string) error {
	if reason == "" {
		reason = "cancelled"
	}
	return e.close(ctx, decisionID, reason, types.EventDecisionCancelled)
}

func (e *Engine) close(ctx context.Context, decisionID, resolution string, kind types.EventKind) error {
	dec, err := e.provider.GetDecision(ctx, decisionID)
	if err != nil {
		return fmt.Errorf("loading decision %q: %w", decisionID, err)
	}
	if dec == nil {
		return fmt.Errorf("decision %q not found", decisionID)
	}
	if dec.Resolved {
		return fmt.Errorf("decision %q already resolved", decisionID)
	}

	now := time.Now()
	dec.Resolved = true
	dec.ResolvedAt = &now
	dec.Resolution = resolution
	if err := e.provider.PutDecision(ctx, *dec); err != nil {
		return fmt.Errorf("storing resolved decision: %w", err)
	}
	_ = e.provider.AppendEvent(ctx, types.Event{
		Kind:         kind,
		ModelVersion: dec.ModelVersion,
		DecisionID:   decisionID,
		Message:      resolution,
		Timestamp:    now,
	})
	return nil
}

func (e *Engine) checkDrift(ctx context.Context, modelVersion string, dec *types.RetrainDecision) {
	report, err := e.provider.GetLatestDriftReport(ctx, modelVersion)
	if err != nil {
		e.logger.Error("failed to load drift report", "model", modelVersion, "error", err)
		return
	}
	if report == nil || report.Aggregate != types.DriftDrift {
		return
	}
	dec.Reasons = append(dec.Reasons, types.ReasonDistributionDrift)
	drifted := make([]string, 0, len(report.Features))
	for name, fd := range report.Features {
		if fd.Status == types.DriftDrift {
			drifted = append(drifted, name)
		}
	}
	dec.Details["driftedFeatures"] = drifted
	dec.Details["driftEvaluatedAt"] = report.EvaluatedAt
}

func (e *Engine) checkDegradation(ctx context.Context, model *types.ModelVersion, dec *types.RetrainDecision) {
	summary, err := e.provider.GetLatestPerformanceSummary(ctx, model.ID)
	if err != nil {
		e.logger.Error("failed to load performance summary", "model", model.ID, "error", err)
		return
	}
	if summary == nil || model.Metrics.Accuracy <= 0 {
		return
	}
	// Degradation must exceed the threshold; a drop exactly at it is tolerated.
	drop := model.Metrics.Accuracy - summary.Accuracy
	if drop <= e.degradationThreshold {
		return
	}
	dec.Reasons = append(dec.Reasons, types.ReasonPerformanceDegradation)
	dec.Details["baselineAccuracy"] = model.Metrics.Accuracy
	dec.Details["liveAccuracy"] = summary.Accuracy
	dec.Details["matchedPairs"] = summary.MatchedPairs
	_ = e.provider.AppendEvent(ctx, types.Event{
		Kind:         types.EventPerformanceDegraded,
		ModelVersion: model.ID,
		Message:      fmt.Sprintf("accuracy %.4f below baseline %.4f", summary.Accuracy, model.Metrics.Accuracy),
		Timestamp:    dec.EvaluatedAt,
	})
}

// checkSchedule anchors the scheduled trigger at the model's training time,
// or at the last triggered decision if one fired since.
func (e *Engine) checkSchedule(model *types.ModelVersion, latest *types.RetrainDecision, now time.Time, dec *types.RetrainDecision) {
	anchor := model.TrainedAt
	if latest != nil && latest.Triggered && latest.EvaluatedAt.After(anchor) {
		anchor = latest.EvaluatedAt
	}
	if anchor.IsZero() || now.Sub(anchor) < e.maxInterval {
		return
	}
	dec.Reasons = append(dec.Reasons, types.ReasonScheduled)
	dec.Details["scheduleAnchor"] = anchor
	dec.Details["maxInterval"] = e.maxInterval.String()
}

func (e *Engine) enqueue(ctx context.Context, dec types.RetrainDecision) error {
	if e.queue == nil {
		return nil
	}
	job := types.RetrainJob{
		JobID:        ulid.Make().String(),
		ModelVersion: dec.ModelVersion,
		DecisionID:   dec.DecisionID,
		Reasons:      dec.Reasons,
		EnqueuedAt:   time.Now(),
	}
	if err := e.queue.Enqueue(ctx, job); err != nil {
		return err
	}
	metrics.RetrainsEnqueued.Add(1)
	_ = e.provider.AppendEvent(ctx, types.Event{
		Kind:         types.EventRetrainEnqueued,
		ModelVersion: dec.ModelVersion,
		DecisionID:   dec.DecisionID,
		Details:      map[string]interface{}{"jobId": job.JobID},
		Timestamp:    job.EnqueuedAt,
	})
	return nil
}

func (e *Engine) fireAlert(alert types.Alert) {
	if e.alertFn != nil {
		e.alertFn(alert)
	}
}

func parseDurationDefault(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
