package environment

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/boristopalov/colony/pkg/agent"
	"github.com/boristopalov/colony/pkg/logging"
	"github.com/boristopalov/colony/pkg/memory"
	"github.com/boristopalov/colony/pkg/messaging"
)

const tracerName = "github.com/boristopalov/colony/pkg/environment"

// Environment owns a population of agents and advances them turn by turn.
//
// Registration, removal, sends and observable scans are safe to call from
// agent callbacks, including during parallel turns. Step and RunTurn are
// serialized: a turn never starts before the previous one has finished.
type Environment struct {
	opts Options

	// mu guards the registry and the observable scan.
	mu       sync.RWMutex
	registry *registry

	rngMu sync.Mutex
	rng   *rand.Rand

	turnMu  sync.Mutex
	next    int
	current atomic.Int64

	memory     *memory.Store
	metrics    *Metrics
	tracer     trace.Tracer
	logger     logging.Logger
	finishOnce sync.Once
}

var _ agent.Host = (*Environment)(nil)

// New creates an Environment. It fails with ErrInvalidOrdering when asked
// for a fixed order together with parallel execution.
func New(opts ...Option) (*Environment, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if o.Parallel && !o.RandomOrder {
		return nil, ErrInvalidOrdering
	}
	if o.TurnDelay < 0 {
		return nil, ErrInvalidDelay
	}
	if o.MaxConcurrency < 0 {
		o.MaxConcurrency = 0
	}
	if o.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		o.Rand = rand.New(rand.NewPCG(seed, seed>>1))
	}
	if o.Logger == nil {
		o.Logger = logging.NoOpLogger{}
	}
	if o.Registerer == nil {
		o.Registerer = prometheus.NewRegistry()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}

	metrics, err := newMetrics(o.Registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &Environment{
		opts:     o,
		registry: newRegistry(),
		rng:      o.Rand,
		memory:   memory.NewStore(),
		metrics:  metrics,
		tracer:   o.TracerProvider.Tracer(tracerName),
		logger:   o.Logger,
	}, nil
}

// Add registers a under name and binds it to this environment. The agent is
// initialized on the next turn that dispatches it.
func (e *Environment) Add(a agent.Agent, name string) error {
	if a == nil {
		return ErrNilAgent
	}
	if strings.TrimSpace(name) == "" {
		return ErrBlankName
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.registry.get(name); exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	if err := a.Base().Bind(e, name); err != nil {
		return fmt.Errorf("failed to add agent %s: %w", name, err)
	}
	if err := e.registry.add(name, a); err != nil {
		return err
	}

	e.metrics.AgentsRegistered.Set(float64(e.registry.len()))
	e.logger.Debug("agent added", "agent", name)
	return nil
}

// Remove deregisters the agent called name. It returns ErrAgentNotFound when
// no such agent is registered. A turn already dispatching the agent is not
// interrupted.
func (e *Environment) Remove(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeLocked(name)
}

// RemoveAgent deregisters a, provided it is the agent registered under its name.
func (e *Environment) RemoveAgent(a agent.Agent) error {
	if a == nil {
		return ErrNilAgent
	}
	name := a.Base().Name()

	e.mu.Lock()
	defer e.mu.Unlock()

	current, ok := e.registry.get(name)
	if !ok || current.Base() != a.Base() {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return e.removeLocked(name)
}

func (e *Environment) removeLocked(name string) error {
	if _, err := e.registry.remove(name); err != nil {
		if !errors.Is(err, ErrAgentNotFound) {
			e.logger.Error("agent removal failed", "agent", name, "error", err)
		}
		return err
	}
	e.metrics.AgentsRegistered.Set(float64(e.registry.len()))
	e.logger.Debug("agent removed", "agent", name)
	return nil
}

// Agent returns the agent registered under name.
func (e *Environment) Agent(name string) (agent.Agent, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.get(name)
}

// Agents returns the registered agents in registration order.
func (e *Environment) Agents() []agent.Agent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.list()
}

// AgentNames returns the registered names in registration order.
func (e *Environment) AgentNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.names()
}

// Count returns the number of registered agents.
func (e *Environment) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.len()
}

// FilteredAgents returns the registered names containing fragment.
func (e *Environment) FilteredAgents(fragment string) []string {
	var out []string
	for _, n := range e.AgentNames() {
		if strings.Contains(n, fragment) {
			out = append(out, n)
		}
	}
	return out
}

// RandomAgent returns the name of a uniformly chosen registered agent.
func (e *Environment) RandomAgent() (string, error) {
	names := e.AgentNames()
	if len(names) == 0 {
		return "", ErrNoAgents
	}
	e.rngMu.Lock()
	i := e.rng.IntN(len(names))
	e.rngMu.Unlock()
	return names[i], nil
}

// Send posts msg to its receiver's mailbox. Messages for receivers that are
// not registered are dropped without error.
func (e *Environment) Send(msg messaging.Message) {
	receiver, ok := e.Agent(msg.Receiver())
	if !ok {
		e.metrics.MessagesDropped.Inc()
		e.logger.Debug("message dropped", "receiver", msg.Receiver(), "message", msg.String())
		return
	}
	receiver.Base().Mailbox().Post(msg)
	e.metrics.MessagesSent.Inc()
}

// Memory returns the store shared by every agent of this environment.
func (e *Environment) Memory() *memory.Store { return e.memory }

// Turn returns the turn currently running, or the last one that ran.
func (e *Environment) Turn() int { return int(e.current.Load()) }

// Metrics returns the collectors updated by this environment.
func (e *Environment) Metrics() *Metrics { return e.metrics }

// Finish runs the simulation finished hook. Only the first call has an effect.
func (e *Environment) Finish() {
	e.finishOnce.Do(func() {
		e.logger.Info("simulation finished", "turns", e.Turn())
		if e.opts.OnSimulationFinished != nil {
			e.opts.OnSimulationFinished()
		}
	})
}

// shuffled returns a Fisher-Yates permutation of names drawn from the
// environment's random source.
func (e *Environment) shuffled(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)

	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	for n := len(out); n > 1; {
		k := e.rng.IntN(n)
		n--
		out[n], out[k] = out[k], out[n]
	}
	return out
}
