package behaviours

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/colony/pkg/agent"
)

func TestNew(t *testing.T) {
	a, err := New(KindDonor, map[string]any{
		"initial":    20,
		"multiplier": 1.5,
		"generosity": "0.25",
		"strategy":   "to be kind",
	}, Deps{Model: "m"})
	require.NoError(t, err)
	d, ok := a.(*Donor)
	require.True(t, ok)
	assert.Equal(t, 20.0, d.Resources())
	assert.Equal(t, 1.5, d.cfg.Multiplier)
	assert.Equal(t, 0.25, d.cfg.Generosity)
	assert.Equal(t, "to be kind", d.Strategy())
	assert.Equal(t, "m", d.cfg.Model)

	a, err = New(KindChatter, map[string]any{"task": "Debate.", "max_replies": 2.0}, Deps{})
	require.NoError(t, err)
	c, ok := a.(*Chatter)
	require.True(t, ok)
	assert.Equal(t, "Debate.", c.cfg.Task)
	assert.Equal(t, 2, c.cfg.MaxReplies)

	_, err = New("wizard", nil, Deps{})
	assert.ErrorIs(t, err, ErrUnknownKind)

	for _, params := range []map[string]any{
		{"generosity": 1.5},
		{"initial": "ten"},
		{"history": 2.5},
		{"multiplier": []int{1}},
	} {
		_, err = New(KindDonor, params, Deps{})
		assert.ErrorIs(t, err, ErrBadParam, "%v", params)
	}
}

func TestRankAndSummarize(t *testing.T) {
	mk := func(name string, resources float64) *Donor {
		d := NewDonor(DonorConfig{Initial: resources, Strategy: "s-" + name})
		require.NoError(t, d.Bind(nil, name))
		return d
	}
	agents := []agent.Agent{
		mk("a", 2),
		NewChatter(DefaultChatterConfig()),
		mk("b", 8),
		mk("c", 4),
		mk("d", 2),
	}

	standings := Rank(agents)
	require.Len(t, standings, 4)
	assert.Equal(t, []string{"b", "c", "a", "d"}, []string{standings[0].Name, standings[1].Name, standings[2].Name, standings[3].Name})

	s := Summarize(standings)
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 16, s.Total, 1e-9)
	assert.InDelta(t, 4, s.Mean, 1e-9)
	assert.InDelta(t, 2.449489742783178, s.StdDev, 1e-9)
	assert.InDelta(t, 6, s.Inequality, 1e-9)

	assert.Equal(t, Summary{}, Summarize(nil))

	advice := Advice(standings, 2)
	assert.Equal(t, "Successful strategies from previous generation:\n"+
		"Agent b (8.00 resources): s-b\n"+
		"Agent c (4.00 resources): s-c", advice)
	assert.NotPanics(t, func() { Advice(standings, 10) })
}
