package environment

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/boristopalov/colony/pkg/logging"
)

// Options configures an Environment.
type Options struct {
	// TurnDelay is slept after every turn, once all agents have finished.
	TurnDelay time.Duration
	// RandomOrder shuffles the dispatch order every turn. When false agents
	// run in the order they were added.
	RandomOrder bool
	// Parallel dispatches every agent of a turn on its own goroutine and
	// waits for all of them before the turn ends. Requires RandomOrder.
	Parallel bool
	// MaxConcurrency caps the goroutines of a parallel turn; 0 means one per agent.
	MaxConcurrency int
	// Rand drives shuffling and RandomAgent. Seed it for reproducible runs.
	Rand *rand.Rand

	Logger         logging.Logger
	Registerer     prometheus.Registerer
	TracerProvider trace.TracerProvider

	OnTurnFinished       func(ctx context.Context, report TurnReport)
	OnSimulationFinished func()
}

type Option func(*Options)

func defaultOptions() Options {
	return Options{
		RandomOrder: true,
		Logger:      logging.NoOpLogger{},
	}
}

func WithTurnDelay(d time.Duration) Option {
	return func(o *Options) {
		o.TurnDelay = d
	}
}

func WithRandomOrder(random bool) Option {
	return func(o *Options) {
		o.RandomOrder = random
	}
}

func WithParallel(parallel bool) Option {
	return func(o *Options) {
		o.Parallel = parallel
	}
}

func WithMaxConcurrency(n int) Option {
	return func(o *Options) {
		o.MaxConcurrency = n
	}
}

// WithSeed seeds the environment's random source.
func WithSeed(seed uint64) Option {
	return func(o *Options) {
		o.Rand = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

func WithRand(r *rand.Rand) Option {
	return func(o *Options) {
		o.Rand = r
	}
}

func WithLogger(l logging.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithRegisterer registers the environment's metrics with reg instead of a
// private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *Options) {
		o.Registerer = reg
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Options) {
		o.TracerProvider = tp
	}
}

// WithTurnFinished sets a hook called after each turn and its delay.
func WithTurnFinished(fn func(ctx context.Context, report TurnReport)) Option {
	return func(o *Options) {
		o.OnTurnFinished = fn
	}
}

// WithSimulationFinished sets a hook called once by Finish.
func WithSimulationFinished(fn func()) Option {
	return func(o *Options) {
		o.OnSimulationFinished = fn
	}
}
