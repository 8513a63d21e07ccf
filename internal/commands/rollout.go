package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftlock-systems/driftlock/internal/config"
	"github.com/driftlock-systems/driftlock/internal/rollout"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

const rolloutTimeout = 30 * time.Second

// NewPromoteCmd creates the promote command.
func NewPromoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promote <model-id>",
		Short: "Promote a canary model to active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollout(args[0], func(ctx context.Context, c *rollout.Controller, id string) (*types.ModelVersion, error) {
				return c.Promote(ctx, id)
			})
		},
	}
}

// NewRollbackCmd creates the rollback command.
func NewRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <model-id>",
		Short: "Retire an active model and restore its predecessor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollout(args[0], func(ctx context.Context, c *rollout.Controller, id string) (*types.ModelVersion, error) {
				return c.Rollback(ctx, id)
			})
		},
	}
}

func runRollout(modelID string, op func(context.Context, *rollout.Controller, string) (*types.ModelVersion, error)) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.Default()

	prov, err := newProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), rolloutTimeout)
	defer cancel()

	if err := prov.Start(ctx); err != nil {
		return fmt.Errorf("connecting to provider: %w", err)
	}
	defer func() { _ = prov.Stop(ctx) }()

	st, err := buildStack(cfg, prov, logger)
	if err != nil {
		return err
	}

	mv, err := op(ctx, st.rollout, modelID)
	if err != nil {
		return err
	}
	color.Green("Model %s is now %s", mv.ID, mv.Status)
	return nil
}
