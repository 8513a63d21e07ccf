// Package commands implements the CLI subcommands for the driftlock binary.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/driftlock-systems/driftlock/internal/alert"
	"github.com/driftlock-systems/driftlock/internal/decision"
	"github.com/driftlock-systems/driftlock/internal/drift"
	"github.com/driftlock-systems/driftlock/internal/perf"
	"github.com/driftlock-systems/driftlock/internal/provider"
	ddbprov "github.com/driftlock-systems/driftlock/internal/provider/dynamodb"
	"github.com/driftlock-systems/driftlock/internal/provider/redis"
	"github.com/driftlock-systems/driftlock/internal/queue"
	"github.com/driftlock-systems/driftlock/internal/rollout"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

// newProvider creates the configured storage provider.
func newProvider(cfg *types.ProjectConfig, logger *slog.Logger) (provider.Provider, error) {
	switch cfg.Provider {
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis config is required when provider is redis")
		}
		return redis.New(cfg.Redis, logger), nil
	case "dynamodb":
		if cfg.DynamoDB == nil {
			return nil, fmt.Errorf("dynamodb config is required when provider is dynamodb")
		}
		return ddbprov.New(cfg.DynamoDB)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// stack bundles the monitoring collaborators the commands assemble on top of
// a provider.
type stack struct {
	dispatcher *alert.Dispatcher
	perf       *perf.Registry
	detector   *drift.Detector
	engine     *decision.Engine
	rollout    *rollout.Controller
}

// buildStack wires the detector, tracker registry, decision engine, and
// rollout controller from config. Zero-value config sections fall back to
// each component's defaults.
func buildStack(cfg *types.ProjectConfig, prov provider.Provider, logger *slog.Logger) (*stack, error) {
	dispatcher, err := alert.NewDispatcher(cfg.Alerts, logger)
	if err != nil {
		return nil, fmt.Errorf("creating alert dispatcher: %w", err)
	}

	var driftCfg types.DriftConfig
	if cfg.Drift != nil {
		driftCfg = *cfg.Drift
	}
	var perfCfg types.PerformanceConfig
	if cfg.Performance != nil {
		perfCfg = *cfg.Performance
	}
	var decisionCfg types.DecisionConfig
	if cfg.Decision != nil {
		decisionCfg = *cfg.Decision
	}
	var rolloutCfg types.RolloutConfig
	if cfg.Rollout != nil {
		rolloutCfg = *cfg.Rollout
	}

	var queueCfg types.QueueConfig
	if cfg.Queue != nil {
		queueCfg = *cfg.Queue
	}
	q, err := queue.New(queueCfg)
	if err != nil {
		return nil, fmt.Errorf("creating retrain queue: %w", err)
	}

	alertFn := dispatcher.AlertFunc()
	reg := perf.NewRegistry(perfCfg)
	return &stack{
		dispatcher: dispatcher,
		perf:       reg,
		detector:   drift.New(prov, driftCfg, alertFn, logger),
		engine:     decision.New(prov, q, decisionCfg, perfCfg, alertFn, logger),
		rollout:    rollout.New(prov, reg, rolloutCfg, alertFn, logger),
	}, nil
}
