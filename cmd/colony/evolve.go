package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/boristopalov/colony/pkg/behaviours"
	"github.com/boristopalov/colony/pkg/experiment"
)

func newEvolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evolve",
		Short: "Play generations of the donor game, passing on the best strategies",
		RunE:  runEvolution,
	}
	addRunFlags(cmd)
	flags := cmd.Flags()
	flags.Int("generations", 3, "number of generations")
	flags.Int("population", 6, "donors per generation")
	flags.Float64("survivors", 0.5, "fraction of each generation whose strategies are passed on")
	flags.String("stats", "", "write per-generation statistics to this CSV file")
	return cmd
}

func runEvolution(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	generations, _ := flags.GetInt("generations")
	population, _ := flags.GetInt("population")
	survivors, _ := flags.GetFloat64("survivors")
	statsPath, _ := flags.GetString("stats")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	logger, closer, err := newLogger(cfg.Logging, cmd.ErrOrStderr(), newRunID())
	if err != nil {
		return err
	}
	defer closer.Close()

	completer, err := newCompleter(ctx, cfg.Provider)
	if err != nil {
		return err
	}

	var params map[string]any
	for _, g := range cfg.Agents {
		if g.Kind == behaviours.KindDonor {
			params = g.Config
			break
		}
	}
	deps := behaviours.Deps{Completer: completer, Model: cfg.Provider.Model, Logger: logger}

	evo := experiment.EvolutionConfig{
		Generations:        generations,
		TurnsPerGeneration: cfg.Turns,
		Population:         population,
		SurvivorRatio:      survivors,
		EnvOptions:         envOptions(cfg, logger, nil, nil),
		Logger:             logger,
		NewDonor: func(generation, i int, advice string) (*behaviours.Donor, error) {
			p := make(map[string]any, len(params)+1)
			for k, v := range params {
				p[k] = v
			}
			p["advice"] = advice
			a, err := behaviours.New(behaviours.KindDonor, p, deps)
			if err != nil {
				return nil, err
			}
			return a.(*behaviours.Donor), nil
		},
	}
	if statsPath != "" {
		f, err := os.Create(statsPath)
		if err != nil {
			return fmt.Errorf("failed to create stats file: %w", err)
		}
		defer f.Close()
		evo.Stats = f
	}

	results, err := experiment.RunEvolution(ctx, evo)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintf(out, "generation %d: total=%.2f mean=%.2f stddev=%.2f inequality=%.2f donations=%d\n",
			r.Generation, r.Total, r.Mean, r.StdDev, r.Inequality, r.Donations)
	}
	if len(results) > 0 {
		fmt.Fprintln(out, results[len(results)-1].Advice)
	}
	return nil
}
