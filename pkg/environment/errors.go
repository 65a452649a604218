package environment

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	// ErrInvalidOrdering is returned by New for a fixed dispatch order combined
	// with parallel execution; the order cannot hold once agents run concurrently.
	ErrInvalidOrdering = errors.New("fixed dispatch order cannot be combined with parallel execution")
	ErrInvalidDelay    = errors.New("turn delay must not be negative")

	ErrNilAgent      = errors.New("agent is nil")
	ErrBlankName     = errors.New("agent name is blank")
	ErrDuplicateName = errors.New("agent name already registered")
	ErrAgentNotFound = errors.New("agent not found")
	ErrNoAgents      = errors.New("no agents registered")
	ErrStaleTurn     = errors.New("turn number already passed")

	// ErrRegistryInconsistent means an agent was indexed by name but missing
	// from the dispatch order. It indicates a bug, not a caller mistake.
	ErrRegistryInconsistent = errors.New("agent registry is inconsistent")
)

// Phase names the agent callback that was running when a fault occurred.
type Phase string

const (
	PhaseInit       Phase = "init"
	PhaseFilter     Phase = "perception_filter"
	PhasePerception Phase = "perception"
	PhaseAction     Phase = "action"
	PhaseReaction   Phase = "reaction"
)

// AgentFault is a panic recovered from an agent callback. Faults are isolated
// to the agent that raised them and collected in the TurnReport.
type AgentFault struct {
	Turn  int
	Agent string
	Phase Phase
	Err   error
	Stack []byte
}

func newAgentFault(turn int, name string, phase Phase, recovered any) *AgentFault {
	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", recovered)
	}
	return &AgentFault{
		Turn:  turn,
		Agent: name,
		Phase: phase,
		Err:   err,
		Stack: debug.Stack(),
	}
}

func (f *AgentFault) Error() string {
	return fmt.Sprintf("agent %s faulted during %s on turn %d: %v", f.Agent, f.Phase, f.Turn, f.Err)
}

func (f *AgentFault) Unwrap() error { return f.Err }
