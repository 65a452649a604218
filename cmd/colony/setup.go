package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/boristopalov/colony/pkg/behaviours"
	"github.com/boristopalov/colony/pkg/config"
	"github.com/boristopalov/colony/pkg/environment"
	"github.com/boristopalov/colony/pkg/logging"
	"github.com/boristopalov/colony/pkg/providers"
)

// loadConfig reads --config when given, or the defaults, then applies
// environment overrides and the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.ExperimentConfig, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.ExperimentConfig
		err error
	)
	if path != "" {
		cfg, err = config.LoadConfig(path)
	} else {
		cfg = config.Default()
		err = cfg.ApplyEnv()
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("turns") {
		cfg.Turns, _ = flags.GetInt("turns")
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("parallel") {
		cfg.Environment.Parallel, _ = flags.GetBool("parallel")
		if cfg.Environment.Parallel {
			cfg.Environment.RandomOrder = true
		}
	}
	if flags.Changed("provider") {
		cfg.Provider.Name, _ = flags.GetString("provider")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("metrics-addr") {
		cfg.Telemetry.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("trace") {
		cfg.Telemetry.Tracing, _ = flags.GetBool("trace")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func addRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int("turns", 0, "number of turns to run, 0 runs until interrupted")
	flags.Uint64("seed", 0, "random seed, 0 seeds from the clock")
	flags.Bool("parallel", false, "dispatch agents concurrently")
	flags.String("provider", "", "completion provider: static, openai or gemini")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.Bool("trace", false, "export spans to stderr")
}

// newLogger builds the run's logger. The returned closer releases a log file
// when one is configured.
func newLogger(cfg config.LogConfig, fallback io.Writer, runID string) (logging.Logger, io.Closer, error) {
	out := fallback
	var closer io.Closer = io.NopCloser(nil)
	if cfg.Path != "" {
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closer = f, f
	}

	logger := logging.New(logging.Config{Level: cfg.Level, Format: cfg.Format, Output: out})
	if s, ok := logger.(*logging.SlogAdapter); ok {
		logger = s.With("run", runID)
	}
	return logger, closer, nil
}

func newRunID() string { return uuid.New().String() }

func envOptions(cfg *config.ExperimentConfig, logger logging.Logger, reg prometheus.Registerer, tp trace.TracerProvider) []environment.Option {
	opts := []environment.Option{
		environment.WithRandomOrder(cfg.Environment.RandomOrder),
		environment.WithParallel(cfg.Environment.Parallel),
		environment.WithMaxConcurrency(cfg.Environment.MaxConcurrency),
		environment.WithTurnDelay(cfg.Environment.TurnDelay),
		environment.WithLogger(logger),
	}
	if cfg.Seed != 0 {
		opts = append(opts, environment.WithSeed(cfg.Seed))
	}
	if reg != nil {
		opts = append(opts, environment.WithRegisterer(reg))
	}
	if tp != nil {
		opts = append(opts, environment.WithTracerProvider(tp))
	}
	return opts
}

func newCompleter(ctx context.Context, cfg config.ProviderConfig) (providers.Completer, error) {
	var opts []providers.ProviderOption
	if cfg.BaseURL != "" {
		opts = append(opts, providers.WithBaseURL(cfg.BaseURL))
	}
	return providers.New(ctx, cfg.Name, opts...)
}

// populate adds every configured agent group to env.
func populate(env *environment.Environment, groups []config.AgentConfig, deps behaviours.Deps) error {
	for _, group := range groups {
		for _, name := range group.AgentNames() {
			a, err := behaviours.New(strings.ToLower(group.Kind), group.Config, deps)
			if err != nil {
				return fmt.Errorf("agent %s: %w", name, err)
			}
			if err := env.Add(a, name); err != nil {
				return err
			}
		}
	}
	return nil
}

func printLeaderboard(w io.Writer, standings []behaviours.Standing) {
	if len(standings) == 0 {
		return
	}
	s := behaviours.Summarize(standings)
	fmt.Fprintf(w, "%-16s %10s\n", "AGENT", "RESOURCES")
	for _, st := range standings {
		fmt.Fprintf(w, "%-16s %10.2f\n", st.Name, st.Resources)
	}
	fmt.Fprintf(w, "total=%.2f mean=%.2f stddev=%.2f inequality=%.2f\n", s.Total, s.Mean, s.StdDev, s.Inequality)
}
