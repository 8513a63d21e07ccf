package rollout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftlock-systems/driftlock/internal/metrics"
	"github.com/driftlock-systems/driftlock/internal/perf"
	"github.com/driftlock-systems/driftlock/internal/provider"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

// ErrPromotionEvaluationFailed is returned when a candidate fails the
// offline gate. The failure is terminal: the candidate is retired.
var ErrPromotionEvaluationFailed = errors.New("promotion evaluation failed")

// ErrNoActiveModel is returned when routing or gating needs an active model
// and none exists.
var ErrNoActiveModel = errors.New("no active model")

// Controller defaults applied when the config leaves fields zero.
const (
	defaultCanaryPercent      = 10
	defaultSoakDuration       = 24 * time.Hour
	defaultMinCanarySamples   = 100
	defaultTolerance          = 0.02
	defaultErrorRateThreshold = 0.10
)

const casAttempts = 3

// Controller owns all model status transitions. The serving layer reads the
// active version only through ActiveModel/Route; nothing else mutates status.
type Controller struct {
	provider provider.Provider
	perf     *perf.Registry

	canaryPercent      int
	soakDuration       time.Duration
	minCanarySamples   int
	tolerance          float64
	errorRateThreshold float64

	alertFn func(types.Alert)
	logger  *slog.Logger
}

// New creates a Controller, filling config defaults for zero fields.
func New(prov provider.Provider, reg *perf.Registry, cfg types.RolloutConfig, alertFn func(types.Alert), logger *slog.Logger) *Controller {
	c := &Controller{
		provider:           prov,
		perf:               reg,
		canaryPercent:      cfg.CanaryPercent,
		soakDuration:       parseDurationDefault(cfg.SoakDuration, defaultSoakDuration),
		minCanarySamples:   cfg.MinCanarySamples,
		tolerance:          cfg.Tolerance,
		errorRateThreshold: cfg.ErrorRateThreshold,
		alertFn:            alertFn,
		logger:             logger,
	}
	if c.canaryPercent <= 0 {
		c.canaryPercent = defaultCanaryPercent
	}
	if c.minCanarySamples <= 0 {
		c.minCanarySamples = defaultMinCanarySamples
	}
	if c.tolerance <= 0 {
		c.tolerance = defaultTolerance
	}
	if c.errorRateThreshold <= 0 {
		c.errorRateThreshold = defaultErrorRateThreshold
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Register stores a freshly trained model as a CANDIDATE with its offline
// evaluation metrics frozen as the degradation baseline.
func (c *Controller) Register(ctx context.Context, id string, trainedAt time.Time, m types.MetricsSnapshot) (*types.ModelVersion, error) {
	existing, err := c.provider.GetModelVersion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("checking model %q: %w", id, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("model %q already registered", id)
	}

	now := time.Now()
	mv := types.ModelVersion{
		ID:        id,
		TrainedAt: trainedAt,
		Status:    types.ModelCandidate,
		Metrics:   m,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.provider.PutModelVersion(ctx, mv); err != nil {
		return nil, fmt.Errorf("storing model %q: %w", id, err)
	}
	_ = c.provider.AppendEvent(ctx, types.Event{
		Kind:         types.EventModelRegistered,
		ModelVersion: id,
		Status:       string(types.ModelCandidate),
		Details:      map[string]interface{}{"accuracy": m.Accuracy, "f1": m.F1},
		Timestamp:    now,
	})
	return &mv, nil
}

// StartCanary runs the offline gate and moves a passing candidate into
// canary. A failing candidate is retired immediately and the call returns
// ErrPromotionEvaluationFailed.
func (c *Controller) StartCanary(ctx context.Context, id string) (*types.ModelVersion, error) {
	candidate, err := c.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Transition(candidate.Status, types.ModelCanary); err != nil {
		return nil, err
	}

	active, err := c.ActiveModel(ctx)
	if err != nil && !errors.Is(err, ErrNoActiveModel) {
		return nil, err
	}

	// First model ever: nothing to compare against, the gate passes.
	if active != nil {
		if candidate.Metrics.Accuracy < active.Metrics.Accuracy-c.tolerance ||
			candidate.Metrics.F1 < active.Metrics.F1-c.tolerance {
			if _, rerr := c.transition(ctx, candidate, types.ModelRetired, nil); rerr != nil {
				return nil, rerr
			}
			metrics.CandidatesRetired.Add(1)
			c.fireAlert(types.Alert{
				Level:        types.AlertLevelWarning,
				ModelVersion: id,
				Message:      fmt.Sprintf("Candidate %s failed offline gate against %s, retired", id, active.ID),
				Details: map[string]interface{}{
					"candidateAccuracy": candidate.Metrics.Accuracy,
					"activeAccuracy":    active.Metrics.Accuracy,
				},
				Timestamp: time.Now(),
			})
			return nil, fmt.Errorf("%w: candidate %q below active %q baseline", ErrPromotionEvaluationFailed, id, active.ID)
		}
	}

	now := time.Now()
	updated, err := c.transition(ctx, candidate, types.ModelCanary, func(mv *types.ModelVersion) {
		mv.CanaryStartedAt = &now
	})
	if err != nil {
		return nil, err
	}
	_ = c.provider.AppendEvent(ctx, types.Event{
		Kind:         types.EventModelCanary,
		ModelVersion: id,
		Status:       string(types.ModelCanary),
		Timestamp:    now,
	})
	return updated, nil
}

// EvaluateCanary applies the promotion gate to a soaking canary. Returns the
// promoted model when every gate passes; nil when the canary keeps soaking.
// A regressing or erroring canary is retired and alerted.
func (c *Controller) EvaluateCanary(ctx context.Context, id string) (*types.ModelVersion, error) {
	canary, err := c.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if canary.Status != types.ModelCanary {
		return nil, fmt.Errorf("%w: %s is %s, not %s", ErrInvalidTransition, id, canary.Status, types.ModelCanary)
	}
	if canary.CanaryStartedAt == nil || time.Since(*canary.CanaryStartedAt) < c.soakDuration {
		return nil, nil // still soaking
	}

	summary, err := c.perf.Snapshot(id)
	if err != nil || summary.MatchedPairs < c.minCanarySamples {
		return nil, c.extendSoak(ctx, canary)
	}

	active, err := c.ActiveModel(ctx)
	if err != nil && !errors.Is(err, ErrNoActiveModel) {
		return nil, err
	}

	errorRate := 1 - summary.Accuracy
	regressed := errorRate >= c.errorRateThreshold
	if active != nil && !regressed {
		baseAccuracy, baseF1 := active.Metrics.Accuracy, active.Metrics.F1
		if activeSummary, serr := c.perf.Snapshot(active.ID); serr == nil {
			baseAccuracy, baseF1 = activeSummary.Accuracy, activeSummary.F1
		}
		regressed = summary.Accuracy < baseAccuracy-c.tolerance || summary.F1 < baseF1-c.tolerance
	}
	if regressed {
		if _, rerr := c.transition(ctx, canary, types.ModelRetired, nil); rerr != nil {
			return nil, rerr
		}
		_ = c.provider.AppendEvent(ctx, types.Event{
			Kind:         types.EventModelRetired,
			ModelVersion: id,
			Status:       string(types.ModelRetired),
			Message:      "canary regressed",
			Timestamp:    time.Now(),
		})
		c.fireAlert(types.Alert{
			Level:        types.AlertLevelError,
			ModelVersion: id,
			Message:      fmt.Sprintf("Canary %s regressed, retired", id),
			Details: map[string]interface{}{
				"canaryAccuracy": summary.Accuracy,
				"errorRate":      errorRate,
				"matchedPairs":   summary.MatchedPairs,
			},
			Timestamp: time.Now(),
		})
		return nil, fmt.Errorf("%w: canary %q regressed", ErrPromotionEvaluationFailed, id)
	}

	return c.Promote(ctx, id)
}

// Promote moves a canary to active, demoting the prior active to retired.
// The two CAS writes preserve exactly-one-active: the new active is written
// last, and a crash in between leaves the canary still routable.
func (c *Controller) Promote(ctx context.Context, id string) (*types.ModelVersion, error) {
	canary, err := c.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Transition(canary.Status, types.ModelActive); err != nil {
		return nil, err
	}

	prior, err := c.ActiveModel(ctx)
	if err != nil && !errors.Is(err, ErrNoActiveModel) {
		return nil, err
	}

	var priorID string
	if prior != nil {
		priorID = prior.ID
		if _, err := c.transition(ctx, prior, types.ModelRetired, nil); err != nil {
			return nil, fmt.Errorf("demoting prior active %q: %w", prior.ID, err)
		}
	}

	now := time.Now()
	promoted, err := c.transition(ctx, canary, types.ModelActive, func(mv *types.ModelVersion) {
		mv.PreviousActive = priorID
	})
	if err != nil {
		return nil, err
	}

	metrics.Promotions.Add(1)
	_ = c.provider.AppendEvent(ctx, types.Event{
		Kind:         types.EventModelPromoted,
		ModelVersion: id,
		Status:       string(types.ModelActive),
		Details:      map[string]interface{}{"previousActive": priorID},
		Timestamp:    now,
	})
	c.fireAlert(types.Alert{
		Level:        types.AlertLevelInfo,
		ModelVersion: id,
		Message:      fmt.Sprintf("Model %s promoted to active", id),
		Timestamp:    now,
	})
	return promoted, nil
}

// Rollback retires the current active and restores its recorded
// PreviousActive. Restoring a retired model is the one sanctioned exception
// to the transition table; only rollback may do it.
func (c *Controller) Rollback(ctx context.Context, id string) (*types.ModelVersion, error) {
	failed, err := c.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if failed.Status != types.ModelActive {
		return nil, fmt.Errorf("%w: cannot roll back %s model %s", ErrInvalidTransition, failed.Status, id)
	}
	if failed.PreviousActive == "" {
		return nil, fmt.Errorf("model %q has no previous active to restore", id)
	}
	previous, err := c.mustGet(ctx, failed.PreviousActive)
	if err != nil {
		return nil, err
	}

	if _, err := c.transition(ctx, failed, types.ModelRetired, nil); err != nil {
		return nil, err
	}
	restored, err := c.forceStatus(ctx, previous, types.ModelActive)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	metrics.Rollbacks.Add(1)
	_ = c.provider.AppendEvent(ctx, types.Event{
		Kind:         types.EventModelRolledBack,
		ModelVersion: id,
		Details:      map[string]interface{}{"restored": previous.ID},
		Timestamp:    now,
	})
	c.fireAlert(types.Alert{
		Level:        types.AlertLevelError,
		ModelVersion: id,
		Message:      fmt.Sprintf("Model %s rolled back, %s restored to active", id, previous.ID),
		Timestamp:    now,
	})
	return restored, nil
}

// Retire moves any non-terminal model to retired.
func (c *Controller) Retire(ctx context.Context, id string) error {
	mv, err := c.mustGet(ctx, id)
	if err != nil {
		return err
	}
	if err := Transition(mv.Status, types.ModelRetired); err != nil {
		return err
	}
	if mv.Status == types.ModelCandidate {
		metrics.CandidatesRetired.Add(1)
	}
	if _, err := c.transition(ctx, mv, types.ModelRetired, nil); err != nil {
		return err
	}
	_ = c.provider.AppendEvent(ctx, types.Event{
		Kind:         types.EventModelRetired,
		ModelVersion: id,
		Status:       string(types.ModelRetired),
		Timestamp:    time.Now(),
	})
	return nil
}

// ActiveModel returns the single active model version.
func (c *Controller) ActiveModel(ctx context.Context) (*types.ModelVersion, error) {
	models, err := c.provider.ListModelVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	for i := range models {
		if models[i].Status == types.ModelActive {
			return &models[i], nil
		}
	}
	return nil, ErrNoActiveModel
}

// Route returns the model version a request should be served by. With a
// soaking canary, CanaryPercent of request IDs route to it; everything else
// goes to the active model.
func (c *Controller) Route(ctx context.Context, requestID string) (*types.ModelVersion, error) {
	models, err := c.provider.ListModelVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	var active, canary *types.ModelVersion
	for i := range models {
		switch models[i].Status {
		case types.ModelActive:
			active = &models[i]
		case types.ModelCanary:
			canary = &models[i]
		}
	}
	if canary != nil && routeToCanary(requestID, c.canaryPercent) {
		return canary, nil
	}
	if active == nil {
		if canary != nil {
			return canary, nil
		}
		return nil, ErrNoActiveModel
	}
	return active, nil
}

func (c *Controller) extendSoak(ctx context.Context, canary *types.ModelVersion) error {
	updated, err := c.transition(ctx, canary, types.ModelCanary, func(mv *types.ModelVersion) {
		now := time.Now()
		mv.CanaryStartedAt = &now
		mv.SoakExtensions++
	})
	if err != nil {
		return err
	}
	c.logger.Info("canary soak extended", "model", canary.ID, "extensions", updated.SoakExtensions)
	_ = c.provider.AppendEvent(ctx, types.Event{
		Kind:         types.EventCanaryExtended,
		ModelVersion: canary.ID,
		Details:      map[string]interface{}{"extensions": updated.SoakExtensions},
		Timestamp:    time.Now(),
	})
	return nil
}

// transition applies a validated status change through CAS, retrying on
// version conflicts with a fresh read.
func (c *Controller) transition(ctx context.Context, mv *types.ModelVersion, to types.ModelStatus, mutate func(*types.ModelVersion)) (*types.ModelVersion, error) {
	if err := Transition(mv.Status, to); err != nil {
		return nil, err
	}
	return c.swap(ctx, mv, to, mutate)
}

// forceStatus bypasses the transition table. Rollback-only.
func (c *Controller) forceStatus(ctx context.Context, mv *types.ModelVersion, to types.ModelStatus) (*types.ModelVersion, error) {
	return c.swap(ctx, mv, to, nil)
}

func (c *Controller) swap(ctx context.Context, mv *types.ModelVersion, to types.ModelStatus, mutate func(*types.ModelVersion)) (*types.ModelVersion, error) {
	current := *mv
	for attempt := 0; attempt < casAttempts; attempt++ {
		next := current
		next.Status = to
		next.Version = current.Version + 1
		next.UpdatedAt = time.Now()
		if mutate != nil {
			mutate(&next)
		}
		ok, err := c.provider.CompareAndSwapModelVersion(ctx, current.ID, current.Version, next)
		if err != nil {
			return nil, fmt.Errorf("swapping model %q: %w", current.ID, err)
		}
		if ok {
			return &next, nil
		}
		fresh, err := c.mustGet(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		current = *fresh
	}
	return nil, fmt.Errorf("model %q: version conflict after %d attempts", mv.ID, casAttempts)
}

func (c *Controller) mustGet(ctx context.Context, id string) (*types.ModelVersion, error) {
	mv, err := c.provider.GetModelVersion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading model %q: %w", id, err)
	}
	if mv == nil {
		return nil, fmt.Errorf("model %q not registered", id)
	}
	return mv, nil
}

func (c *Controller) fireAlert(alert types.Alert) {
	if c.alertFn != nil {
		c.alertFn(alert)
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
