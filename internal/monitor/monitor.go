// Package monitor implements the periodic evaluation loop that drives drift
// detection, performance summaries, retrain decisions, and canary checks for
// every live model version.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/driftlock-systems/driftlock/internal/decision"
	"github.com/driftlock-systems/driftlock/internal/drift"
	"github.com/driftlock-systems/driftlock/internal/metrics"
	"github.com/driftlock-systems/driftlock/internal/perf"
	"github.com/driftlock-systems/driftlock/internal/provider"
	"github.com/driftlock-systems/driftlock/internal/rollout"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

const defaultInterval = 5 * time.Minute

// Monitor periodically evaluates every ACTIVE and CANARY model version.
// Each cycle is guarded by a per-model lock so replicas never double-evaluate,
// and every computation records a staleness marker on failure so the query
// surface can flag last-known-good data.
type Monitor struct {
	provider provider.Provider
	detector *drift.Detector
	perf     *perf.Registry
	engine   *decision.Engine
	rollout  *rollout.Controller
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Monitor.
func New(prov provider.Provider, det *drift.Detector, reg *perf.Registry, eng *decision.Engine, ctrl *rollout.Controller, cfg types.MonitorConfig, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	interval := defaultInterval
	if cfg.Interval != "" {
		if d, err := time.ParseDuration(cfg.Interval); err == nil && d > 0 {
			interval = d
		}
	}
	return &Monitor{
		provider: prov,
		detector: det,
		perf:     reg,
		engine:   eng,
		rollout:  ctrl,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the monitor polling loop.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.logger.Info("monitor started", "interval", m.interval)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		// Run immediately on start
		m.poll(ctx)

		for {
			select {
			case <-ctx.Done():
				m.logger.Info("monitor stopping")
				return
			case <-ticker.C:
				m.poll(ctx)
			}
		}
	}()
}

// Stop gracefully shuts down the monitor.
func (m *Monitor) Stop(ctx context.Context) {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("monitor stopped")
	case <-ctx.Done():
		m.logger.Warn("monitor stop timed out")
	}
}

func (m *Monitor) poll(ctx context.Context) {
	models, err := m.provider.ListModelVersions(ctx)
	if err != nil {
		m.logger.Error("monitor: failed to list model versions", "error", err)
		return
	}

	for _, mv := range models {
		if ctx.Err() != nil {
			return
		}
		if mv.Status != types.ModelActive && mv.Status != types.ModelCanary {
			continue
		}
		m.tick(ctx, mv)
	}
}

// tick runs one evaluation cycle for a single model version.
func (m *Monitor) tick(ctx context.Context, mv types.ModelVersion) {
	lockKey := "monitor:" + mv.ID

	acquired, err := m.provider.AcquireLock(ctx, lockKey, m.interval*2)
	if err != nil {
		m.logger.Error("monitor: failed to acquire lock", "model", mv.ID, "error", err)
		return
	}
	if !acquired {
		return // another replica is handling this model
	}
	defer func() {
		if err := m.provider.ReleaseLock(ctx, lockKey); err != nil {
			m.logger.Error("monitor: failed to release lock", "model", mv.ID, "error", err)
		}
	}()

	now := time.Now()
	var cycleErrs int

	cycleErrs += m.evaluateDrift(ctx, mv.ID)
	cycleErrs += m.summarizePerformance(ctx, mv.ID)

	// Decisions are made for the serving model only; canaries are judged by
	// the rollout gate instead.
	if mv.Status == types.ModelActive {
		cycleErrs += m.evaluateDecision(ctx, mv.ID)
	}
	if mv.Status == types.ModelCanary {
		cycleErrs += m.evaluateCanary(ctx, mv.ID)
	}

	metrics.MonitorCycles.Add(1)
	if cycleErrs > 0 {
		metrics.MonitorCycleErrors.Add(int64(cycleErrs))
	}

	_ = m.provider.AppendEvent(ctx, types.Event{
		Kind:         types.EventMonitorEvaluation,
		ModelVersion: mv.ID,
		Status:       string(mv.Status),
		Details:      map[string]interface{}{"errors": cycleErrs},
		Timestamp:    now,
	})
}

func (m *Monitor) evaluateDrift(ctx context.Context, modelVersion string) int {
	_, err := m.detector.Evaluate(ctx, modelVersion)
	switch {
	case err == nil:
		_ = m.provider.SetStaleness(ctx, modelVersion, provider.ComponentDrift, false)
		return 0
	case errors.Is(err, drift.ErrInsufficientData):
		// Not enough traffic yet: benign, not stale.
		return 0
	default:
		m.logger.Error("monitor: drift evaluation failed", "model", modelVersion, "error", err)
		_ = m.provider.SetStaleness(ctx, modelVersion, provider.ComponentDrift, true)
		return 1
	}
}

func (m *Monitor) summarizePerformance(ctx context.Context, modelVersion string) int {
	summary, err := m.perf.Snapshot(modelVersion)
	if err != nil {
		if errors.Is(err, perf.ErrInsufficientMatchedData) {
			return 0
		}
		m.logger.Error("monitor: performance snapshot failed", "model", modelVersion, "error", err)
		_ = m.provider.SetStaleness(ctx, modelVersion, provider.ComponentPerformance, true)
		return 1
	}

	if err := m.provider.PutPerformanceSummary(ctx, *summary); err != nil {
		m.logger.Error("monitor: storing performance summary failed", "model", modelVersion, "error", err)
		_ = m.provider.SetStaleness(ctx, modelVersion, provider.ComponentPerformance, true)
		return 1
	}
	_ = m.provider.SetStaleness(ctx, modelVersion, provider.ComponentPerformance, false)
	return 0
}

func (m *Monitor) evaluateDecision(ctx context.Context, modelVersion string) int {
	_, err := m.engine.Evaluate(ctx, modelVersion)
	switch {
	case err == nil:
		_ = m.provider.SetStaleness(ctx, modelVersion, provider.ComponentDecision, false)
		return 0
	case errors.Is(err, decision.ErrDecisionInFlight):
		// Another replica owns the lease this cycle.
		return 0
	default:
		m.logger.Error("monitor: decision evaluation failed", "model", modelVersion, "error", err)
		_ = m.provider.SetStaleness(ctx, modelVersion, provider.ComponentDecision, true)
		return 1
	}
}

func (m *Monitor) evaluateCanary(ctx context.Context, modelVersion string) int {
	_, err := m.rollout.EvaluateCanary(ctx, modelVersion)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, rollout.ErrPromotionEvaluationFailed):
		// The gate retired the canary; the controller already alerted.
		m.logger.Warn("monitor: canary retired by promotion gate", "model", modelVersion)
		return 0
	default:
		m.logger.Error("monitor: canary evaluation failed", "model", modelVersion, "error", err)
		return 1
	}
}
