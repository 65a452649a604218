package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/boristopalov/colony/internal/telemetry"
	"github.com/boristopalov/colony/pkg/behaviours"
	"github.com/boristopalov/colony/pkg/environment"
	"github.com/boristopalov/colony/pkg/experiment"
)

const frameInterval = 16 * time.Millisecond

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation",
		RunE:  runSimulation,
	}
	addRunFlags(cmd)
	return cmd
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	runID := newRunID()
	logger, closer, err := newLogger(cfg.Logging, cmd.ErrOrStderr(), runID)
	if err != nil {
		return err
	}
	defer closer.Close()

	reg := telemetry.NewRegistry()
	if cfg.Telemetry.MetricsAddr != "" {
		srv, err := telemetry.NewMetricsServer(cfg.Telemetry.MetricsAddr, reg, logger)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		srv.Start()
		defer srv.Shutdown(context.Background())
	}

	tracing, err := telemetry.NewTracing(telemetry.TracingConfig{
		ServiceName: cfg.Name,
		Enabled:     cfg.Telemetry.Tracing,
		Output:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer tracing.Shutdown(context.Background())

	completer, err := newCompleter(ctx, cfg.Provider)
	if err != nil {
		return err
	}

	opts := envOptions(cfg, logger, reg, tracing.Provider)
	opts = append(opts, environment.WithTurnFinished(func(ctx context.Context, r environment.TurnReport) {
		logger.Info("turn",
			"turn", r.Turn,
			"dispatched", len(r.Dispatched),
			"skipped", len(r.Skipped),
			"faults", len(r.Faults),
			"duration", r.Duration,
		)
	}))
	env, err := environment.New(opts...)
	if err != nil {
		return err
	}

	deps := behaviours.Deps{Completer: completer, Model: cfg.Provider.Model, Logger: logger}
	if err := populate(env, cfg.Agents, deps); err != nil {
		return err
	}
	logger.Info("simulation starting",
		"name", cfg.Name,
		"agents", env.Count(),
		"turns", cfg.Turns,
		"parallel", cfg.Environment.Parallel,
		"random_order", cfg.Environment.RandomOrder,
	)

	if cfg.TurnsPerSecond > 0 {
		err = runPaced(ctx, env, cfg.TurnsPerSecond, cfg.Turns)
	} else {
		err = experiment.New(cfg.Name, env, cfg.Turns, experiment.WithLogger(logger)).Run(ctx)
	}
	if err != nil && ctx.Err() == nil {
		return err
	}

	printLeaderboard(cmd.OutOrStdout(), behaviours.Rank(env.Agents()))
	return nil
}

func runPaced(ctx context.Context, env *environment.Environment, turnsPerSecond float64, turns int) error {
	defer env.Finish()
	pacer, err := experiment.NewPacer(env, turnsPerSecond)
	if err != nil {
		return err
	}
	return pacer.Run(ctx, frameInterval, turns)
}
