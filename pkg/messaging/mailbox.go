package messaging

import "sync"

// Mailbox is a FIFO queue of incoming messages for a single agent.
// Any goroutine may Post; only the owning agent's turn should Drain.
// The zero value is ready to use.
type Mailbox struct {
	mu    sync.Mutex
	queue []Message
}

// Post appends a message to the queue.
func (m *Mailbox) Post(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, msg)
}

// Drain removes and returns every message queued at the time of the call,
// oldest first. Messages posted afterwards stay queued for the next drain.
func (m *Mailbox) Drain() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return nil
	}
	msgs := m.queue
	m.queue = nil
	return msgs
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
