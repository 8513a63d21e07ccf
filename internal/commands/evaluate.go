package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftlock-systems/driftlock/internal/config"
)

const evaluateTimeout = 2 * time.Minute

// NewEvaluateCmd creates the evaluate command.
func NewEvaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <model-id>",
		Short: "Run the retrain decision policy for a model version once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(args[0])
		},
	}
}

func runEvaluate(modelID string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.Default()

	prov, err := newProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), evaluateTimeout)
	defer cancel()

	if err := prov.Start(ctx); err != nil {
		return fmt.Errorf("connecting to provider: %w", err)
	}
	defer func() { _ = prov.Stop(ctx) }()

	st, err := buildStack(cfg, prov, logger)
	if err != nil {
		return err
	}

	decision, err := st.engine.Evaluate(ctx, modelID)
	if err != nil {
		return fmt.Errorf("evaluating %s: %w", modelID, err)
	}

	bold := color.New(color.Bold)
	_, _ = bold.Printf("Decision %s for %s\n", decision.DecisionID, modelID)
	if decision.Triggered {
		color.Red("  RETRAIN triggered")
		for _, reason := range decision.Reasons {
			fmt.Printf("    - %s\n", reason)
		}
	} else {
		color.Green("  No retrain needed")
	}
	fmt.Printf("  Evaluated at %s\n", decision.EvaluatedAt.Format(time.RFC3339))
	return nil
}
