package behaviours

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/colony/pkg/environment"
	"github.com/boristopalov/colony/pkg/memory"
	"github.com/boristopalov/colony/pkg/providers"
)

func newDonorEnv(t *testing.T, donors map[string]*Donor, order ...string) *environment.Environment {
	t.Helper()
	env, err := environment.New(environment.WithRandomOrder(false), environment.WithSeed(3))
	require.NoError(t, err)
	for _, name := range order {
		require.NoError(t, env.Add(donors[name], name))
	}
	return env
}

func step(t *testing.T, env *environment.Environment, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		report, err := env.Step(context.Background())
		require.NoError(t, err)
		require.Empty(t, report.Faults)
	}
}

func TestDonorGame(t *testing.T) {
	donors := map[string]*Donor{
		"alice": NewDonor(DefaultDonorConfig()),
		"bob":   NewDonor(DonorConfig{Initial: 10, Multiplier: 2, Generosity: 0, HistorySize: 10}),
	}
	env := newDonorEnv(t, donors, "alice", "bob")

	step(t, env, 1)
	v, ok := donors["alice"].Observable(ObservableResources)
	require.True(t, ok)
	assert.Equal(t, "10.00", v)
	assert.True(t, donors["alice"].UsingObservables())

	// alice gives half to bob, who receives it doubled in the same turn
	step(t, env, 1)
	assert.InDelta(t, 5, donors["alice"].Resources(), 1e-9)
	assert.InDelta(t, 20, donors["bob"].Resources(), 1e-9)

	step(t, env, 1)
	assert.InDelta(t, 2.5, donors["alice"].Resources(), 1e-9)
	assert.InDelta(t, 25, donors["bob"].Resources(), 1e-9)

	v, _ = donors["bob"].Observable(ObservableResources)
	assert.Equal(t, "25.00", v)

	ledger, ok := memory.Get[[]Donation](env.Memory(), LedgerKey)
	require.True(t, ok)
	require.Len(t, ledger, 2)
	assert.Equal(t, Donation{Turn: 1, Donor: "alice", Recipient: "bob", Amount: 5, Received: 10}, ledger[0])
	assert.Equal(t, 2, ledger[1].Turn)

	assert.Len(t, donors["alice"].History(), 2)
	assert.Contains(t, donors["alice"].History()[0], "I donated")
	assert.Contains(t, donors["bob"].History()[0], "I received 5.00 (multiplied to 10.00) from alice")
	assert.Contains(t, donors["bob"].History()[1], "I received 2.50 (multiplied to 5.00) from alice")
}

func TestDonorUsesCompleter(t *testing.T) {
	completer := providers.NewStatic(
		"Thinking...\nMy strategy will be to give three units.",
		"Applying my strategy. ANSWER: 3",
	)
	cfg := DefaultDonorConfig()
	cfg.Completer = completer
	cfg.Model = "test-model"

	donors := map[string]*Donor{
		"alice": NewDonor(cfg),
		"bob":   NewDonor(DonorConfig{Initial: 10, Multiplier: 2}),
	}
	env := newDonorEnv(t, donors, "alice", "bob")
	step(t, env, 2)

	assert.Equal(t, "to give three units.", donors["alice"].Strategy())
	assert.InDelta(t, 7, donors["alice"].Resources(), 1e-9)
	assert.InDelta(t, 16, donors["bob"].Resources(), 1e-9)

	calls := completer.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "test-model", calls[1].Model)
	assert.Equal(t, donorSystemPrompt, calls[1].System)
	assert.Contains(t, calls[1].Prompt, "to give three units.")
	assert.Contains(t, calls[1].Prompt, "You may donate to bob")
	assert.Contains(t, calls[1].Prompt, noHistory)
}

func TestDonorStrategyRetry(t *testing.T) {
	completer := providers.NewStatic("I would rather not say.", "My strategy will be reciprocity.")
	cfg := DefaultDonorConfig()
	cfg.Completer = completer
	d := NewDonor(cfg)

	env := newDonorEnv(t, map[string]*Donor{"solo": d}, "solo")
	step(t, env, 1)

	assert.Equal(t, "reciprocity.", d.Strategy())
	require.Len(t, completer.Calls(), 2)
	assert.Contains(t, completer.Calls()[1].Prompt, "I would rather not say.")
}

func TestDonorDecision(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     float64
	}{
		{name: "parsed answer", response: "ANSWER: 4", want: 4},
		{name: "decimal answer", response: "hmm\nANSWER: .5", want: 0.5},
		{name: "clamped to own resources", response: "ANSWER: 50", want: 10},
		{name: "unparseable falls back to generosity", response: "all of it", want: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultDonorConfig()
			cfg.Completer = providers.NewStatic(tt.response)
			d := NewDonor(cfg)
			env := newDonorEnv(t, map[string]*Donor{"d": d}, "d")
			step(t, env, 1)

			got := d.decide(context.Background(), "other", 10, 10)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRecipientHistory(t *testing.T) {
	store := memory.NewStore()
	assert.Equal(t, noHistory, recipientHistory(store, "bob"))

	store.Set(LedgerKey, []Donation{
		{Turn: 1, Donor: "bob", Recipient: "a", Amount: 1, Received: 2},
		{Turn: 2, Donor: "carol", Recipient: "bob", Amount: 1, Received: 2},
		{Turn: 3, Donor: "bob", Recipient: "a", Amount: 2, Received: 4},
		{Turn: 4, Donor: "bob", Recipient: "c", Amount: 3, Received: 6},
		{Turn: 5, Donor: "bob", Recipient: "d", Amount: 4, Received: 8},
	})

	got := recipientHistory(store, "bob")
	assert.Equal(t,
		"Turn 3: bob donated 2.00 to a, who received 4.00\n"+
			"Turn 4: bob donated 3.00 to c, who received 6.00\n"+
			"Turn 5: bob donated 4.00 to d, who received 8.00",
		got)
}

func TestExtractStrategy(t *testing.T) {
	assert.Equal(t, "to cooperate.", extractStrategy("Let me think.\nMy strategy will be to cooperate."))
	assert.Equal(t, "to defect.", extractStrategy("  my strategy will be to defect."))
	assert.Empty(t, extractStrategy("I will cooperate."))
}

func TestDonorIgnoresOtherMessages(t *testing.T) {
	donors := map[string]*Donor{
		"alice": NewDonor(DonorConfig{Initial: 10, Multiplier: 2}),
		"bob":   NewDonor(DonorConfig{Initial: 10, Multiplier: 2}),
	}
	env := newDonorEnv(t, donors, "alice", "bob")
	step(t, env, 1)

	require.NoError(t, donors["alice"].Send("bob", "hello there", ""))
	require.NoError(t, donors["alice"].SendMessage("bob", ActionDonate, []string{"lots"}, ""))
	require.NoError(t, donors["alice"].SendMessage("bob", ActionDonate, nil, ""))
	step(t, env, 1)
	assert.InDelta(t, 10, donors["bob"].Resources(), 1e-9)
}
