package environment

import (
	"fmt"

	"github.com/boristopalov/colony/pkg/agent"
)

// registry indexes agents by name and remembers insertion order, which is the
// dispatch order when random ordering is off. It does no locking of its own;
// the environment guards it.
type registry struct {
	agents map[string]agent.Agent
	order  []string
}

func newRegistry() *registry {
	return &registry{agents: make(map[string]agent.Agent)}
}

func (r *registry) add(name string, a agent.Agent) error {
	if _, exists := r.agents[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	r.agents[name] = a
	r.order = append(r.order, name)
	return nil
}

func (r *registry) remove(name string) (agent.Agent, error) {
	a, exists := r.agents[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	for i, n := range r.order {
		if n == name {
			delete(r.agents, name)
			r.order = append(r.order[:i], r.order[i+1:]...)
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is indexed but not ordered", ErrRegistryInconsistent, name)
}

func (r *registry) get(name string) (agent.Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

func (r *registry) names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

func (r *registry) list() []agent.Agent {
	agents := make([]agent.Agent, 0, len(r.order))
	for _, n := range r.order {
		agents = append(agents, r.agents[n])
	}
	return agents
}

func (r *registry) len() int { return len(r.order) }
