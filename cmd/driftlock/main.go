package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftlock-systems/driftlock/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "driftlock",
		Short: "Model monitoring and automated retraining decisions",
		Long: `Driftlock watches deployed ML models for input drift and performance
degradation, decides when a retrain is warranted, and manages canary
rollouts of newly trained versions. It ingests predictions and ground
truth, compares live feature distributions against training-time
snapshots with PSI, and enqueues retrain jobs when its policy triggers.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewEvaluateCmd(),
		commands.NewPromoteCmd(),
		commands.NewRollbackCmd(),
		commands.NewStatusCmd(),
		commands.NewServeCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
