package messaging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrBlankSender   = errors.New("message sender is blank")
	ErrBlankReceiver = errors.New("message receiver is blank")
	ErrEmptyAction   = errors.New("message has no action")
)

// Message represents a communication between two agents.
// The content is split into an action (the first token) and its parameters.
// A Message is immutable once constructed.
type Message struct {
	sender         string
	receiver       string
	conversationID string
	action         string
	params         []string
}

// NewMessage builds a message from free text content. The content is split on
// whitespace; the first token becomes the action and the rest the parameters.
func NewMessage(sender, receiver, content, conversationID string) (Message, error) {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return Message{}, ErrEmptyAction
	}
	return NewMessageWithParams(sender, receiver, fields[0], fields[1:], conversationID)
}

// NewMessageWithParams builds a message from an explicit action and parameter list.
func NewMessageWithParams(sender, receiver, action string, params []string, conversationID string) (Message, error) {
	if strings.TrimSpace(sender) == "" {
		return Message{}, ErrBlankSender
	}
	if strings.TrimSpace(receiver) == "" {
		return Message{}, ErrBlankReceiver
	}
	if strings.TrimSpace(action) == "" {
		return Message{}, ErrEmptyAction
	}

	// always keep a non-nil slice so both constructors compare equal
	p := make([]string, len(params))
	copy(p, params)

	return Message{
		sender:         sender,
		receiver:       receiver,
		conversationID: conversationID,
		action:         action,
		params:         p,
	}, nil
}

// NewConversationID returns a fresh identifier for correlating related messages.
func NewConversationID() string {
	return uuid.New().String()
}

func (m Message) Sender() string         { return m.sender }
func (m Message) Receiver() string       { return m.receiver }
func (m Message) ConversationID() string { return m.conversationID }
func (m Message) Action() string         { return m.action }

// Parameters returns a copy of the message parameters.
func (m Message) Parameters() []string {
	p := make([]string, len(m.params))
	copy(p, m.params)
	return p
}

// Parameter returns the i-th parameter, if present.
func (m Message) Parameter(i int) (string, bool) {
	if i < 0 || i >= len(m.params) {
		return "", false
	}
	return m.params[i], true
}

// Content rebuilds the whitespace separated text form of the message.
func (m Message) Content() string {
	if len(m.params) == 0 {
		return m.action
	}
	return m.action + " " + strings.Join(m.params, " ")
}

func (m Message) String() string {
	return fmt.Sprintf("[%s -> %s] %s:[%s]", m.sender, m.receiver, m.action, strings.Join(m.params, ", "))
}
