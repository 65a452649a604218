package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/boristopalov/colony/pkg/memory"
	"github.com/boristopalov/colony/pkg/messaging"
)

var (
	ErrUnbound      = errors.New("agent is not registered in an environment")
	ErrAlreadyBound = errors.New("agent is already registered in an environment")
)

// Behaviour is the set of callbacks an environment drives once per turn.
type Behaviour interface {
	// Init runs once, on the first turn the agent is dispatched.
	Init(ctx context.Context)
	// PerceptionFilter reports whether another agent's observables should be
	// visible to this agent. It must not have side effects. observed is a copy
	// taken under the registry lock.
	PerceptionFilter(observed map[string]string) bool
	// Perception receives the visible snapshots before Action or Reaction.
	// It is only called for agents that use observables.
	Perception(ctx context.Context, observed []Snapshot)
	// Action runs when the mailbox is empty at the start of the agent's turn.
	Action(ctx context.Context)
	// Reaction runs once for every queued message, oldest first.
	Reaction(ctx context.Context, msg messaging.Message)
}

// Agent is a Behaviour backed by a Base. Embedding Base in a struct provides
// the Base method.
type Agent interface {
	Behaviour
	Base() *Base
}

// Host is the environment an agent is registered in, as seen by the agent.
type Host interface {
	Send(msg messaging.Message)
	Remove(name string) error
	AgentNames() []string
	RandomAgent() (string, error)
	Memory() *memory.Store
	Turn() int
}

// Base carries the state every agent needs: its name, mailbox, observables
// and a reference to its environment. The zero value is ready to be embedded.
type Base struct {
	name        string
	host        Host
	bindMu      sync.Mutex
	initialized atomic.Bool
	mailbox     messaging.Mailbox

	obsMu            sync.RWMutex
	observables      map[string]string
	usingObservables atomic.Bool
}

func (b *Base) Base() *Base { return b }

// Name returns the name the agent was registered under.
func (b *Base) Name() string { return b.name }

// Host returns the environment the agent is registered in, or nil.
func (b *Base) Host() Host { return b.host }

// Bind attaches the agent to host under name. It is called by the
// environment on registration and fails if the agent was bound before.
func (b *Base) Bind(host Host, name string) error {
	b.bindMu.Lock()
	defer b.bindMu.Unlock()

	if b.host != nil {
		return ErrAlreadyBound
	}
	b.host = host
	b.name = name
	return nil
}

func (b *Base) Initialized() bool { return b.initialized.Load() }

// MarkInitialized records that Init has run.
func (b *Base) MarkInitialized() { b.initialized.Store(true) }

// Mailbox returns the agent's incoming message queue.
func (b *Base) Mailbox() *messaging.Mailbox { return &b.mailbox }

// Send delivers content to receiver through the environment.
func (b *Base) Send(receiver, content, conversationID string) error {
	if b.host == nil {
		return ErrUnbound
	}
	msg, err := messaging.NewMessage(b.name, receiver, content, conversationID)
	if err != nil {
		return err
	}
	b.host.Send(msg)
	return nil
}

// SendMessage delivers an explicit action and parameters to receiver.
func (b *Base) SendMessage(receiver, action string, params []string, conversationID string) error {
	if b.host == nil {
		return ErrUnbound
	}
	msg, err := messaging.NewMessageWithParams(b.name, receiver, action, params, conversationID)
	if err != nil {
		return err
	}
	b.host.Send(msg)
	return nil
}

// SendToMany sends the same content to each receiver.
func (b *Base) SendToMany(receivers []string, content, conversationID string) error {
	for _, r := range receivers {
		if err := b.Send(r, content, conversationID); err != nil {
			return err
		}
	}
	return nil
}

// Broadcast sends content to every agent registered at the time of the call.
func (b *Base) Broadcast(content string, includeSender bool, conversationID string) error {
	if b.host == nil {
		return ErrUnbound
	}
	receivers := b.host.AgentNames()
	if !includeSender {
		filtered := receivers[:0]
		for _, r := range receivers {
			if r != b.name {
				filtered = append(filtered, r)
			}
		}
		receivers = filtered
	}
	return b.SendToMany(receivers, content, conversationID)
}

// Stop removes the agent from its environment. It is the agent-initiated
// counterpart of the environment's Remove.
func (b *Base) Stop() error {
	if b.host == nil {
		return ErrUnbound
	}
	return b.host.Remove(b.name)
}

// UseObservables opts the agent in or out of perception.
func (b *Base) UseObservables(on bool) { b.usingObservables.Store(on) }

func (b *Base) UsingObservables() bool { return b.usingObservables.Load() }

// SetObservable publishes a property other agents can perceive.
func (b *Base) SetObservable(key, value string) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	if b.observables == nil {
		b.observables = make(map[string]string)
	}
	b.observables[key] = value
}

func (b *Base) Observable(key string) (string, bool) {
	b.obsMu.RLock()
	defer b.obsMu.RUnlock()
	v, ok := b.observables[key]
	return v, ok
}

func (b *Base) DeleteObservable(key string) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	delete(b.observables, key)
}

// Observables returns a copy of the published properties. The copy is nil
// when nothing is published.
func (b *Base) Observables() map[string]string {
	b.obsMu.RLock()
	defer b.obsMu.RUnlock()
	if len(b.observables) == 0 {
		return nil
	}
	out := make(map[string]string, len(b.observables))
	for k, v := range b.observables {
		out[k] = v
	}
	return out
}
