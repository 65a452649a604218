package agent

import "sort"

// Snapshot is a read-only copy of another agent's observables taken during
// one turn. Later changes to the source agent do not show through.
type Snapshot struct {
	name     string
	observed map[string]string
}

// NewSnapshot copies observed into a new Snapshot of the agent called name.
func NewSnapshot(name string, observed map[string]string) Snapshot {
	cp := make(map[string]string, len(observed))
	for k, v := range observed {
		cp[k] = v
	}
	return Snapshot{name: name, observed: cp}
}

// Name is the observed agent's name.
func (s Snapshot) Name() string { return s.name }

func (s Snapshot) Get(key string) (string, bool) {
	v, ok := s.observed[key]
	return v, ok
}

func (s Snapshot) Len() int { return len(s.observed) }

// Keys returns the observed property names, sorted.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.observed))
	for k := range s.observed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the observed properties.
func (s Snapshot) Map() map[string]string {
	cp := make(map[string]string, len(s.observed))
	for k, v := range s.observed {
		cp[k] = v
	}
	return cp
}
