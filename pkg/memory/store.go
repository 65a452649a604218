package memory

import (
	"sort"
	"sync"
)

// Store is a keyed set of shared slots scoped to one environment. The map
// itself is safe for concurrent use; values placed in it are not guarded, so
// mutable values shared between concurrently running agents need their own
// synchronization or must be changed through Update.
type Store struct {
	mu    sync.RWMutex
	slots map[string]any
}

func NewStore() *Store {
	return &Store{slots: make(map[string]any)}
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[key] = value
}

// Load returns the raw value stored under key.
func (s *Store) Load(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.slots[key]
	return v, ok
}

func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, key)
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.slots))
	for k := range s.slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reset drops every slot.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = make(map[string]any)
}

// Get returns the value under key as a T. It reports false if the key is
// missing or holds a value of another type.
func Get[T any](s *Store, key string) (T, bool) {
	v, ok := s.Load(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Update atomically replaces the value under key with fn(current). current is
// the zero T when the key is missing or holds another type.
func Update[T any](s *Store, key string, fn func(current T) T) T {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, _ := s.slots[key].(T)
	next := fn(current)
	s.slots[key] = next
	return next
}
