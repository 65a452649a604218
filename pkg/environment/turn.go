package environment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/boristopalov/colony/pkg/agent"
)

// DispatchKind describes what an agent did during its turn.
type DispatchKind string

const (
	KindInit     DispatchKind = "init"
	KindAction   DispatchKind = "action"
	KindReaction DispatchKind = "reaction"
)

// Dispatch records one agent's turn.
type Dispatch struct {
	Agent     string
	Kind      DispatchKind
	Perceived bool // Perception ran before the action or reactions
	Messages  int  // messages drained, for KindReaction
}

// TurnReport summarizes a finished turn.
type TurnReport struct {
	Turn int
	// Order is the dispatch order computed at the start of the turn.
	Order []string
	// Dispatched lists agents in the order their dispatch completed.
	Dispatched []Dispatch
	// Skipped lists agents that were removed, or the turn was cancelled,
	// before their dispatch started.
	Skipped  []string
	Faults   []*AgentFault
	Duration time.Duration
}

// turnState collects the report of a turn from concurrently running dispatches.
type turnState struct {
	mu     sync.Mutex
	report TurnReport
}

func (s *turnState) dispatched(d Dispatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Dispatched = append(s.report.Dispatched, d)
}

func (s *turnState) skipped(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Skipped = append(s.report.Skipped, name)
}

func (s *turnState) fault(f *AgentFault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Faults = append(s.report.Faults, f)
}

// Step runs the next turn and advances the turn counter.
func (e *Environment) Step(ctx context.Context) (TurnReport, error) {
	e.turnMu.Lock()
	defer e.turnMu.Unlock()

	turn := e.next
	e.next++
	return e.runTurn(ctx, turn)
}

// RunTurn runs one turn numbered turn. Every agent registered when the turn
// starts is dispatched at most once: uninitialized agents run Init, the rest
// optionally perceive and then react to their queued messages or act.
//
// In parallel mode each agent runs on its own goroutine and RunTurn returns
// only after all of them have finished. After the agents, RunTurn sleeps for
// the configured delay and calls the turn finished hook. A cancelled context
// skips agents not yet dispatched and returns the context's error without
// calling the hook.
//
// Turn numbers only move forward: a turn below the next one Step would run
// fails with ErrStaleTurn.
func (e *Environment) RunTurn(ctx context.Context, turn int) (TurnReport, error) {
	e.turnMu.Lock()
	defer e.turnMu.Unlock()

	if turn < e.next {
		return TurnReport{Turn: turn}, fmt.Errorf("%w: %d, next is %d", ErrStaleTurn, turn, e.next)
	}
	e.next = turn + 1
	return e.runTurn(ctx, turn)
}

func (e *Environment) runTurn(ctx context.Context, turn int) (TurnReport, error) {
	start := time.Now()
	e.current.Store(int64(turn))

	names := e.AgentNames()
	order := names
	if e.opts.RandomOrder || e.opts.Parallel {
		order = e.shuffled(names)
	}

	ctx, span := e.tracer.Start(ctx, "environment.turn", trace.WithAttributes(
		attribute.Int("colony.turn", turn),
		attribute.Int("colony.agents", len(order)),
		attribute.Bool("colony.parallel", e.opts.Parallel),
	))
	defer span.End()

	state := &turnState{report: TurnReport{Turn: turn, Order: order}}

	if e.opts.Parallel {
		var g errgroup.Group
		if e.opts.MaxConcurrency > 0 {
			g.SetLimit(e.opts.MaxConcurrency)
		}
		for _, name := range order {
			g.Go(func() error {
				e.dispatch(ctx, turn, name, state)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, name := range order {
			e.dispatch(ctx, turn, name, state)
		}
	}

	report := state.report
	report.Duration = time.Since(start)
	e.metrics.TurnDuration.Observe(report.Duration.Seconds())

	if len(report.Faults) > 0 {
		span.SetStatus(codes.Error, "agent faults")
	}
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return report, err
	}

	if e.opts.TurnDelay > 0 {
		timer := time.NewTimer(e.opts.TurnDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			span.RecordError(ctx.Err())
			return report, ctx.Err()
		case <-timer.C:
		}
	}

	e.metrics.Turns.Inc()
	e.logger.Debug("turn finished",
		"turn", turn,
		"dispatched", len(report.Dispatched),
		"skipped", len(report.Skipped),
		"faults", len(report.Faults),
		"duration", report.Duration,
	)

	if e.opts.OnTurnFinished != nil {
		e.opts.OnTurnFinished(ctx, report)
	}
	return report, nil
}

// dispatch runs one agent's turn. The registry is checked again here so
// agents removed earlier in the same turn are skipped.
func (e *Environment) dispatch(ctx context.Context, turn int, name string, state *turnState) {
	if ctx.Err() != nil {
		state.skipped(name)
		return
	}
	a, ok := e.Agent(name)
	if !ok {
		state.skipped(name)
		return
	}
	b := a.Base()

	ctx, span := e.tracer.Start(ctx, "agent.dispatch", trace.WithAttributes(
		attribute.String("colony.agent", name),
		attribute.Int("colony.turn", turn),
	))
	defer span.End()

	if !b.Initialized() {
		e.guard(ctx, turn, name, PhaseInit, state, func() { a.Init(ctx) })
		b.MarkInitialized()
		e.record(state, span, Dispatch{Agent: name, Kind: KindInit})
		return
	}

	d := Dispatch{Agent: name}
	if b.UsingObservables() {
		visible := e.observe(ctx, turn, name, a, state)
		e.guard(ctx, turn, name, PhasePerception, state, func() { a.Perception(ctx, visible) })
		d.Perceived = true
	}

	msgs := b.Mailbox().Drain()
	if len(msgs) == 0 {
		d.Kind = KindAction
		e.guard(ctx, turn, name, PhaseAction, state, func() { a.Action(ctx) })
	} else {
		d.Kind = KindReaction
		d.Messages = len(msgs)
		for _, msg := range msgs {
			e.guard(ctx, turn, name, PhaseReaction, state, func() { a.Reaction(ctx, msg) })
		}
	}
	e.record(state, span, d)
}

func (e *Environment) record(state *turnState, span trace.Span, d Dispatch) {
	span.SetAttributes(
		attribute.String("colony.dispatch.kind", string(d.Kind)),
		attribute.Int("colony.dispatch.messages", d.Messages),
	)
	e.metrics.Dispatches.WithLabelValues(string(d.Kind)).Inc()
	state.dispatched(d)
}

// guard runs fn and turns a panic into an AgentFault on the turn report.
func (e *Environment) guard(ctx context.Context, turn int, name string, phase Phase, state *turnState, fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		f := newAgentFault(turn, name, phase, r)
		state.fault(f)
		e.metrics.Faults.WithLabelValues(string(phase)).Inc()
		e.logger.Error("agent fault", "agent", name, "turn", turn, "phase", string(phase), "error", f.Err)

		span := trace.SpanFromContext(ctx)
		span.RecordError(f)
		span.SetStatus(codes.Error, string(phase))
	}()
	fn()
}

// observe builds the snapshots visible to the agent called self. Other
// agents' observables are copied while the registry is locked; the filter
// then runs on the copies outside the lock, so it may call back into the
// environment.
func (e *Environment) observe(ctx context.Context, turn int, self string, a agent.Agent, state *turnState) []agent.Snapshot {
	type candidate struct {
		name     string
		observed map[string]string
	}

	e.mu.RLock()
	candidates := make([]candidate, 0, e.registry.len())
	for _, other := range e.registry.list() {
		ob := other.Base()
		if ob.Name() == self {
			continue
		}
		observed := ob.Observables()
		if len(observed) == 0 {
			continue
		}
		candidates = append(candidates, candidate{name: ob.Name(), observed: observed})
	}
	e.mu.RUnlock()

	visible := make([]agent.Snapshot, 0, len(candidates))
	for _, c := range candidates {
		snap := agent.NewSnapshot(c.name, c.observed)
		include := false
		e.guard(ctx, turn, self, PhaseFilter, state, func() { include = a.PerceptionFilter(c.observed) })
		if include {
			visible = append(visible, snap)
		}
	}
	return visible
}
