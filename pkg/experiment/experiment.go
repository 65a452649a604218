package experiment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/boristopalov/colony/pkg/environment"
	"github.com/boristopalov/colony/pkg/logging"
)

// Stepper advances a simulation by one turn.
type Stepper interface {
	Step(ctx context.Context) (environment.TurnReport, error)
}

// Finisher is implemented by steppers with an end of simulation hook.
type Finisher interface {
	Finish()
}

type Status struct {
	Running   bool
	StartTime time.Time
	EndTime   time.Time
	Turns     int
	Faults    int
	Errors    []error
}

type Option func(*Experiment)

func WithLogger(l logging.Logger) Option {
	return func(e *Experiment) {
		e.logger = l
	}
}

// WithReporter registers fn to receive every finished turn's report.
func WithReporter(fn func(environment.TurnReport)) Option {
	return func(e *Experiment) {
		e.reporters = append(e.reporters, fn)
	}
}

// Experiment drives a Stepper for a fixed number of turns, or until stopped
// when turns is 0.
type Experiment struct {
	name      string
	env       Stepper
	turns     int
	logger    logging.Logger
	reporters []func(environment.TurnReport)

	mu      sync.RWMutex
	status  Status
	cancel  context.CancelFunc
	stopped bool
}

func New(name string, env Stepper, turns int, opts ...Option) *Experiment {
	e := &Experiment{
		name:   name,
		env:    env,
		turns:  turns,
		logger: logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Experiment) Name() string { return e.name }

// Run steps the environment until the turn budget is spent, Stop is called
// or ctx is done. Stop is not an error. The environment's Finish hook runs
// once Run returns, whatever the cause.
func (e *Experiment) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	if e.status.Running {
		e.mu.Unlock()
		return errors.New("experiment already running")
	}
	e.cancel = cancel
	e.status.Running = true
	e.status.StartTime = time.Now()
	stopped := e.stopped
	e.mu.Unlock()

	e.logger.Info("experiment started", "experiment", e.name, "turns", e.turns)

	defer func() {
		e.mu.Lock()
		e.status.Running = false
		e.status.EndTime = time.Now()
		e.cancel = nil
		status := e.status
		e.mu.Unlock()

		if f, ok := e.env.(Finisher); ok {
			f.Finish()
		}
		e.logger.Info("experiment finished",
			"experiment", e.name,
			"turns", status.Turns,
			"faults", status.Faults,
			"duration", status.EndTime.Sub(status.StartTime),
		)
	}()

	if stopped {
		return nil
	}
	err := e.runLoop(ctx)
	if err != nil && e.isStopped() && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Experiment) runLoop(ctx context.Context) error {
	for i := 0; e.turns == 0 || i < e.turns; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Experiment) step(ctx context.Context) error {
	report, err := e.env.Step(ctx)
	e.record(report, err)
	if err != nil {
		return err
	}
	for _, fn := range e.reporters {
		fn(report)
	}
	return nil
}

func (e *Experiment) record(report environment.TurnReport, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.status.Errors = append(e.status.Errors, err)
		}
		return
	}
	e.status.Turns++
	e.status.Faults += len(report.Faults)
	for _, f := range report.Faults {
		e.status.Errors = append(e.status.Errors, f)
	}
}

// Stop ends a running experiment after its current turn's dispatches, or
// makes the next Run return immediately.
func (e *Experiment) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Experiment) isStopped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stopped
}

// Status returns a copy of the experiment's progress.
func (e *Experiment) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.status
	s.Errors = append([]error(nil), e.status.Errors...)
	return s
}
