package memory

import "sync"

// Stream is a bounded, append-only log of entries. Once full, the oldest
// entry is evicted for each new one.
type Stream struct {
	entries  []string
	capacity int
	mu       sync.RWMutex
}

func NewStream(capacity int) *Stream {
	if capacity < 1 {
		capacity = 1
	}
	return &Stream{
		entries:  make([]string, 0, capacity),
		capacity: capacity,
	}
}

// All returns a copy of every entry, oldest first.
func (s *Stream) All() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]string, len(s.entries))
	copy(entries, s.entries)
	return entries
}

// Last returns a copy of up to n of the most recent entries, oldest first.
func (s *Stream) Last(n int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > len(s.entries) {
		n = len(s.entries)
	}
	if n <= 0 {
		return []string{}
	}
	entries := make([]string, n)
	copy(entries, s.entries[len(s.entries)-n:])
	return entries
}

func (s *Stream) Append(entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[len(s.entries)-s.capacity:]
	}
}

func (s *Stream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
