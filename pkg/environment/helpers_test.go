package environment

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/boristopalov/colony/pkg/agent"
	"github.com/boristopalov/colony/pkg/messaging"
)

// journal records agent callbacks across goroutines.
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.events))
	copy(out, j.events)
	return out
}

func (j *journal) reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = nil
}

// scriptedAgent logs its callbacks and runs optional hooks.
type scriptedAgent struct {
	agent.Base
	log *journal

	onInit       func(ctx context.Context)
	onAction     func(ctx context.Context)
	onReaction   func(ctx context.Context, msg messaging.Message)
	onPerception func(ctx context.Context, observed []agent.Snapshot)
	filter       func(observed map[string]string) bool
}

func newScripted(log *journal) *scriptedAgent {
	return &scriptedAgent{log: log}
}

func (a *scriptedAgent) Init(ctx context.Context) {
	a.log.add(a.Name() + ":init")
	if a.onInit != nil {
		a.onInit(ctx)
	}
}

func (a *scriptedAgent) PerceptionFilter(observed map[string]string) bool {
	if a.filter != nil {
		return a.filter(observed)
	}
	return true
}

func (a *scriptedAgent) Perception(ctx context.Context, observed []agent.Snapshot) {
	a.log.add(a.Name() + ":perception")
	if a.onPerception != nil {
		a.onPerception(ctx, observed)
	}
}

func (a *scriptedAgent) Action(ctx context.Context) {
	a.log.add(a.Name() + ":action")
	if a.onAction != nil {
		a.onAction(ctx)
	}
}

func (a *scriptedAgent) Reaction(ctx context.Context, msg messaging.Message) {
	a.log.add(a.Name() + ":reaction:" + msg.Action())
	if a.onReaction != nil {
		a.onReaction(ctx, msg)
	}
}

// newEnv builds an environment and fails the test on error.
func newEnv(t *testing.T, opts ...Option) *Environment {
	t.Helper()
	env, err := New(opts...)
	require.NoError(t, err)
	return env
}

// populate adds one scripted agent per name and returns them by name.
func populate(t *testing.T, env *Environment, log *journal, names ...string) map[string]*scriptedAgent {
	t.Helper()
	agents := make(map[string]*scriptedAgent, len(names))
	for _, n := range names {
		a := newScripted(log)
		require.NoError(t, env.Add(a, n))
		agents[n] = a
	}
	return agents
}

// initialize runs the first turn so every agent is past Init.
func initialize(t *testing.T, env *Environment, log *journal) {
	t.Helper()
	_, err := env.Step(context.Background())
	require.NoError(t, err)
	log.reset()
}

func dispatchedNames(r TurnReport) []string {
	names := make([]string, 0, len(r.Dispatched))
	for _, d := range r.Dispatched {
		names = append(names, d.Agent)
	}
	return names
}

func mustMessage(t *testing.T, from, to, content string) messaging.Message {
	t.Helper()
	msg, err := messaging.NewMessage(from, to, content, "")
	require.NoError(t, err)
	return msg
}
