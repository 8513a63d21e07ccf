package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftlock-systems/driftlock/internal/archiver"
	"github.com/driftlock-systems/driftlock/internal/config"
	"github.com/driftlock-systems/driftlock/internal/monitor"
	pgstore "github.com/driftlock-systems/driftlock/internal/provider/postgres"
	"github.com/driftlock-systems/driftlock/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Driftlock HTTP API server and monitor loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.Default()

	prov, err := newProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	ctx := context.Background()
	if err := prov.Start(ctx); err != nil {
		return fmt.Errorf("connecting to provider: %w", err)
	}

	st, err := buildStack(cfg, prov, logger)
	if err != nil {
		return err
	}

	// Monitor loop
	var mon *monitor.Monitor
	if cfg.Monitor != nil && cfg.Monitor.Enabled {
		mon = monitor.New(prov, st.detector, st.perf, st.engine, st.rollout, *cfg.Monitor, logger)
		mon.Start(ctx)
	}

	// Archiver
	var arc *archiver.Archiver
	if cfg.Archiver != nil && cfg.Archiver.Enabled {
		pg, err := pgstore.New(ctx, cfg.Archiver.DSN)
		if err != nil {
			return fmt.Errorf("connecting to Postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return fmt.Errorf("migrating Postgres: %w", err)
		}
		interval := 5 * time.Minute
		if cfg.Archiver.Interval != "" {
			if d, err := time.ParseDuration(cfg.Archiver.Interval); err == nil && d > 0 {
				interval = d
			}
		}
		arc = archiver.New(prov, pg, interval, logger)
		arc.Start(ctx)
	}

	// Server
	srv := server.New(cfg.Server.Addr, server.Deps{
		Provider: prov,
		Detector: st.detector,
		Perf:     st.perf,
		Engine:   st.engine,
		Rollout:  st.rollout,
		Logger:   logger,
	}, cfg.Server.APIKey, cfg.Server.MaxRequestBody)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		color.Yellow("\nReceived %s, shutting down...", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if arc != nil {
			arc.Stop(shutdownCtx)
		}
		if mon != nil {
			mon.Stop(shutdownCtx)
		}
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		_ = prov.Stop(shutdownCtx)
		color.Green("Server stopped gracefully")
		return nil
	}
}
