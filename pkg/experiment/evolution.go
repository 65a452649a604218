package experiment

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/boristopalov/colony/pkg/behaviours"
	"github.com/boristopalov/colony/pkg/environment"
	"github.com/boristopalov/colony/pkg/logging"
	"github.com/boristopalov/colony/pkg/memory"
)

var statsHeader = []string{
	"Generation",
	"Agents",
	"TotalResources",
	"AverageResources",
	"StandardDeviation",
	"ResourceInequality",
	"Donations",
	"Faults",
}

// DonorFactory builds the i-th donor of a generation. advice is empty for
// the first generation.
type DonorFactory func(generation, i int, advice string) (*behaviours.Donor, error)

// EvolutionConfig describes a generational donor game: every generation is a
// fresh environment whose donors start from the strategies of the previous
// generation's best performers.
type EvolutionConfig struct {
	Generations        int
	TurnsPerGeneration int
	Population         int
	// SurvivorRatio is the fraction of a generation whose strategies are
	// passed on as advice.
	SurvivorRatio float64
	NewDonor      DonorFactory
	EnvOptions    []environment.Option
	// Stats receives one CSV row per generation when set.
	Stats  io.Writer
	Logger logging.Logger
}

type GenerationStats struct {
	Generation int
	behaviours.Summary
	Donations int
	Faults    int
	Survivors []behaviours.Standing
	Advice    string
}

func (c EvolutionConfig) validate() error {
	var errs []error
	if c.Generations < 1 {
		errs = append(errs, errors.New("generations must be positive"))
	}
	if c.TurnsPerGeneration < 1 {
		errs = append(errs, errors.New("turns per generation must be positive"))
	}
	if c.Population < 2 {
		errs = append(errs, errors.New("population needs at least two donors"))
	}
	if c.SurvivorRatio <= 0 || c.SurvivorRatio > 1 {
		errs = append(errs, errors.New("survivor ratio must be in (0, 1]"))
	}
	if c.NewDonor == nil {
		errs = append(errs, errors.New("donor factory is required"))
	}
	return errors.Join(errs...)
}

// RunEvolution plays every generation in turn and returns their statistics.
func RunEvolution(ctx context.Context, cfg EvolutionConfig) ([]GenerationStats, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid evolution: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}

	var w *csv.Writer
	if cfg.Stats != nil {
		w = csv.NewWriter(cfg.Stats)
		if err := w.Write(statsHeader); err != nil {
			return nil, fmt.Errorf("failed to write stats header: %w", err)
		}
	}

	var (
		results []GenerationStats
		advice  string
	)
	for gen := 1; gen <= cfg.Generations; gen++ {
		stats, err := runGeneration(ctx, cfg, gen, advice)
		if err != nil {
			return results, fmt.Errorf("generation %d: %w", gen, err)
		}
		results = append(results, stats)
		advice = stats.Advice

		cfg.Logger.Info("generation finished",
			"generation", gen,
			"total", stats.Total,
			"mean", stats.Mean,
			"stddev", stats.StdDev,
			"inequality", stats.Inequality,
			"donations", stats.Donations,
			"faults", stats.Faults,
		)
		if w != nil {
			if err := w.Write(stats.record()); err != nil {
				return results, fmt.Errorf("failed to write stats: %w", err)
			}
			w.Flush()
			if err := w.Error(); err != nil {
				return results, fmt.Errorf("failed to write stats: %w", err)
			}
		}
	}
	return results, nil
}

func runGeneration(ctx context.Context, cfg EvolutionConfig, gen int, advice string) (GenerationStats, error) {
	env, err := environment.New(cfg.EnvOptions...)
	if err != nil {
		return GenerationStats{}, err
	}
	for i := 0; i < cfg.Population; i++ {
		d, err := cfg.NewDonor(gen, i, advice)
		if err != nil {
			return GenerationStats{}, fmt.Errorf("failed to create donor: %w", err)
		}
		if err := env.Add(d, fmt.Sprintf("%d_%d", gen, i)); err != nil {
			return GenerationStats{}, err
		}
	}

	// one extra turn for Init
	exp := New(fmt.Sprintf("generation-%d", gen), env, cfg.TurnsPerGeneration+1, WithLogger(cfg.Logger))
	if err := exp.Run(ctx); err != nil {
		return GenerationStats{}, err
	}

	standings := behaviours.Rank(env.Agents())
	survivors := int(float64(cfg.Population) * cfg.SurvivorRatio)
	survivors = max(1, min(survivors, len(standings)))
	ledger, _ := memory.Get[[]behaviours.Donation](env.Memory(), behaviours.LedgerKey)

	return GenerationStats{
		Generation: gen,
		Summary:    behaviours.Summarize(standings),
		Donations:  len(ledger),
		Faults:     exp.Status().Faults,
		Survivors:  standings[:survivors],
		Advice:     behaviours.Advice(standings, survivors),
	}, nil
}

func (s GenerationStats) record() []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	return []string{
		strconv.Itoa(s.Generation),
		strconv.Itoa(s.Count),
		f(s.Total),
		f(s.Mean),
		f(s.StdDev),
		f(s.Inequality),
		strconv.Itoa(s.Donations),
		strconv.Itoa(s.Faults),
	}
}
