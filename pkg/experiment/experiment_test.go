package experiment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/colony/pkg/environment"
)

// fakeStepper counts turns and can fail or block on demand.
type fakeStepper struct {
	mu       sync.Mutex
	steps    int
	finished int
	failAt   int
	faults   int
	onStep   func(turn int)
}

func (f *fakeStepper) Step(ctx context.Context) (environment.TurnReport, error) {
	f.mu.Lock()
	turn := f.steps
	f.steps++
	onStep := f.onStep
	f.mu.Unlock()

	if onStep != nil {
		onStep(turn)
	}
	if err := ctx.Err(); err != nil {
		return environment.TurnReport{Turn: turn}, err
	}
	if f.failAt > 0 && turn+1 == f.failAt {
		return environment.TurnReport{Turn: turn}, errors.New("step failed")
	}
	report := environment.TurnReport{Turn: turn}
	for i := 0; i < f.faults; i++ {
		report.Faults = append(report.Faults, &environment.AgentFault{Turn: turn, Agent: "x", Phase: environment.PhaseAction, Err: errors.New("boom")})
	}
	return report, nil
}

func (f *fakeStepper) Finish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished++
}

func (f *fakeStepper) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.steps, f.finished
}

func TestExperimentRunsTurnBudget(t *testing.T) {
	env := &fakeStepper{faults: 1}
	var reported []int
	exp := New("budget", env, 5, WithReporter(func(r environment.TurnReport) { reported = append(reported, r.Turn) }))

	require.NoError(t, exp.Run(context.Background()))

	steps, finished := env.counts()
	assert.Equal(t, 5, steps)
	assert.Equal(t, 1, finished)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, reported)

	status := exp.Status()
	assert.False(t, status.Running)
	assert.Equal(t, 5, status.Turns)
	assert.Equal(t, 5, status.Faults)
	assert.Len(t, status.Errors, 5)
	assert.False(t, status.EndTime.Before(status.StartTime))
	assert.Equal(t, "budget", exp.Name())
}

func TestExperimentStepError(t *testing.T) {
	env := &fakeStepper{failAt: 3}
	exp := New("failing", env, 10)

	err := exp.Run(context.Background())
	assert.ErrorContains(t, err, "step failed")

	steps, finished := env.counts()
	assert.Equal(t, 3, steps)
	assert.Equal(t, 1, finished, "finish runs on failure too")
	assert.Equal(t, 2, exp.Status().Turns)
	assert.Len(t, exp.Status().Errors, 1)
}

func TestExperimentStop(t *testing.T) {
	env := &fakeStepper{}
	exp := New("endless", env, 0)

	var running atomic.Bool
	env.onStep = func(turn int) {
		running.Store(true)
		if turn == 20 {
			exp.Stop()
		}
	}

	require.NoError(t, exp.Run(context.Background()))
	assert.True(t, running.Load())
	steps, finished := env.counts()
	assert.Equal(t, 21, steps)
	assert.Equal(t, 1, finished)
	assert.Equal(t, 20, exp.Status().Turns)

	// stopped experiments do not start again
	require.NoError(t, exp.Run(context.Background()))
	steps, _ = env.counts()
	assert.Equal(t, 21, steps)
}

func TestExperimentContextCancel(t *testing.T) {
	env := &fakeStepper{}
	ctx, cancel := context.WithCancel(context.Background())
	env.onStep = func(turn int) {
		if turn == 2 {
			cancel()
		}
	}

	err := New("cancelled", env, 0).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExperimentWithEnvironment(t *testing.T) {
	finished := 0
	env, err := environment.New(
		environment.WithSeed(1),
		environment.WithSimulationFinished(func() { finished++ }),
	)
	require.NoError(t, err)

	exp := New("real", env, 3)
	require.NoError(t, exp.Run(context.Background()))
	assert.Equal(t, 2, env.Turn())
	assert.Equal(t, 1, finished)
}

func TestPacer(t *testing.T) {
	for _, rate := range []float64{0, -1, 2e9} {
		_, err := NewPacer(&fakeStepper{}, rate)
		assert.ErrorIs(t, err, ErrInvalidRate, "rate %g", rate)
	}

	env := &fakeStepper{}
	p, err := NewPacer(env, 10)
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, p.Interval())

	frames := []struct {
		delta time.Duration
		ran   bool
	}{
		{60 * time.Millisecond, false},
		{60 * time.Millisecond, true}, // 120ms, 20ms carried
		{70 * time.Millisecond, false},
		{10 * time.Millisecond, true},  // exactly 100ms
		{350 * time.Millisecond, true}, // one turn per frame, 50ms carried
		{50 * time.Millisecond, true},
	}
	for i, f := range frames {
		ran, err := p.Frame(context.Background(), f.delta)
		require.NoError(t, err)
		assert.Equal(t, f.ran, ran, "frame %d", i)
	}
	steps, _ := env.counts()
	assert.Equal(t, 4, steps)
	assert.Equal(t, len(frames), p.Frames())
}

func TestPacerRun(t *testing.T) {
	env := &fakeStepper{}
	p, err := NewPacer(env, 200)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx, time.Millisecond, 3))
	steps, _ := env.counts()
	assert.Equal(t, 3, steps)

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Run(ctx, time.Millisecond, 0), context.Canceled)
}
