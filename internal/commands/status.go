package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftlock-systems/driftlock/internal/config"
	"github.com/driftlock-systems/driftlock/internal/provider"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var modelID string

	cmd := &cobra.Command{
		Use:   "status [model-id]",
		Short: "Show model versions and their monitoring state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				modelID = args[0]
			}
			return runStatus(modelID)
		},
	}
	return cmd
}

func runStatus(modelID string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	prov, err := newProvider(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := prov.Start(ctx); err != nil {
		return fmt.Errorf("connecting to provider: %w", err)
	}
	defer func() { _ = prov.Stop(ctx) }()

	if modelID != "" {
		return showModelStatus(ctx, prov, modelID)
	}
	return showAllModels(ctx, prov)
}

func showAllModels(ctx context.Context, prov provider.Provider) error {
	models, err := prov.ListModelVersions(ctx)
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}

	if len(models) == 0 {
		fmt.Println("No model versions registered.")
		return nil
	}

	bold := color.New(color.Bold)
	_, _ = bold.Println("Model Versions:")
	fmt.Println()

	for _, mv := range models {
		fmt.Printf("  %-30s %-15s accuracy=%.4f trained=%s\n",
			mv.ID, statusString(mv.Status), mv.Metrics.Accuracy,
			mv.TrainedAt.Format("2006-01-02"))
	}
	fmt.Println()
	return nil
}

func showModelStatus(ctx context.Context, prov provider.Provider, id string) error {
	mv, err := prov.GetModelVersion(ctx, id)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}
	if mv == nil {
		return fmt.Errorf("model %q not registered", id)
	}

	bold := color.New(color.Bold)
	_, _ = bold.Printf("Model: %s\n", mv.ID)
	fmt.Printf("  Status:    %s\n", statusString(mv.Status))
	fmt.Printf("  Trained:   %s\n", mv.TrainedAt.Format(time.RFC3339))
	fmt.Printf("  Baseline:  accuracy=%.4f f1=%.4f\n", mv.Metrics.Accuracy, mv.Metrics.F1)
	if mv.CanaryStartedAt != nil {
		fmt.Printf("  Canary:    since %s (%d soak extensions)\n",
			mv.CanaryStartedAt.Format(time.RFC3339), mv.SoakExtensions)
	}

	// Drift
	if report, _ := prov.GetLatestDriftReport(ctx, id); report != nil {
		fmt.Println()
		_, _ = bold.Println("  Drift:")
		stale, _ := prov.GetStaleness(ctx, id, provider.ComponentDrift)
		fmt.Printf("    Aggregate: %s%s  (samples=%d, evaluated %s)\n",
			driftString(report.Aggregate), staleSuffix(stale),
			report.SampleSize, report.EvaluatedAt.Format(time.RFC3339))
		for name, fd := range report.Features {
			if fd.Status == types.DriftStable {
				continue
			}
			fmt.Printf("    %-24s %s (PSI %.4f)\n", name, driftString(fd.Status), fd.PSI)
		}
	}

	// Performance
	if summary, _ := prov.GetLatestPerformanceSummary(ctx, id); summary != nil {
		fmt.Println()
		_, _ = bold.Println("  Performance:")
		stale, _ := prov.GetStaleness(ctx, id, provider.ComponentPerformance)
		fmt.Printf("    accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f%s\n",
			summary.Accuracy, summary.Precision, summary.Recall, summary.F1, staleSuffix(stale))
		fmt.Printf("    matched pairs: %d, avg latency: %.1fms\n",
			summary.MatchedPairs, summary.AvgLatencyMillis)
	}

	// Recent decisions
	if decisions, _ := prov.ListDecisions(ctx, id, 5); len(decisions) > 0 {
		fmt.Println()
		_, _ = bold.Println("  Recent Decisions:")
		for _, d := range decisions {
			verdict := color.GreenString("no retrain")
			if d.Triggered {
				verdict = color.RedString("RETRAIN %v", d.Reasons)
				if d.Resolved {
					verdict = color.YellowString("retrained (%s)", d.Resolution)
				}
			}
			fmt.Printf("    %s  %s  %s\n", d.DecisionID, verdict, d.EvaluatedAt.Format(time.RFC3339))
		}
	}

	fmt.Println()
	return nil
}

func statusString(s types.ModelStatus) string {
	switch s {
	case types.ModelActive:
		return color.GreenString(string(s))
	case types.ModelCanary:
		return color.CyanString(string(s))
	case types.ModelCandidate:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func driftString(s types.DriftStatus) string {
	switch s {
	case types.DriftStable:
		return color.GreenString(string(s))
	case types.DriftWatch:
		return color.YellowString(string(s))
	case types.DriftDrift:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}

func staleSuffix(stale bool) string {
	if stale {
		return color.YellowString(" [stale]")
	}
	return ""
}
