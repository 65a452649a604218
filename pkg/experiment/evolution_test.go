package experiment

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/colony/pkg/behaviours"
	"github.com/boristopalov/colony/pkg/environment"
)

func TestRunEvolution(t *testing.T) {
	var advices []string
	factory := func(generation, i int, advice string) (*behaviours.Donor, error) {
		if i == 0 {
			advices = append(advices, advice)
		}
		cfg := behaviours.DefaultDonorConfig()
		cfg.Generosity = 0.1 * float64(i+1)
		cfg.Strategy = "give a bit"
		cfg.Advice = advice
		return behaviours.NewDonor(cfg), nil
	}

	var out bytes.Buffer
	stats, err := RunEvolution(context.Background(), EvolutionConfig{
		Generations:        3,
		TurnsPerGeneration: 4,
		Population:         4,
		SurvivorRatio:      0.5,
		NewDonor:           factory,
		EnvOptions:         []environment.Option{environment.WithSeed(11)},
		Stats:              &out,
	})
	require.NoError(t, err)
	require.Len(t, stats, 3)

	for i, s := range stats {
		assert.Equal(t, i+1, s.Generation)
		assert.Equal(t, 4, s.Count)
		assert.Len(t, s.Survivors, 2)
		assert.Greater(t, s.Donations, 0)
		assert.Zero(t, s.Faults)
		// donations are multiplied, so wealth only grows
		assert.Greater(t, s.Total, 40.0)
		assert.GreaterOrEqual(t, s.Survivors[0].Resources, s.Survivors[1].Resources)
	}

	require.Len(t, advices, 3)
	assert.Empty(t, advices[0])
	assert.Equal(t, stats[0].Advice, advices[1])
	assert.Contains(t, advices[1], "Successful strategies from previous generation")

	records, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, statsHeader, records[0])
	assert.Equal(t, "1", records[1][0])
	assert.Equal(t, "4", records[1][1])
}

func TestRunEvolutionValidates(t *testing.T) {
	_, err := RunEvolution(context.Background(), EvolutionConfig{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "generations must be positive")
	assert.ErrorContains(t, err, "donor factory is required")
}
