package behaviours

import (
	"context"
	"fmt"
	"strings"

	"github.com/boristopalov/colony/pkg/agent"
	"github.com/boristopalov/colony/pkg/logging"
	"github.com/boristopalov/colony/pkg/memory"
	"github.com/boristopalov/colony/pkg/messaging"
	"github.com/boristopalov/colony/pkg/providers"
)

const KindChatter = "chatter"

type ChatterConfig struct {
	Task        string
	System      string
	HistorySize int
	// MaxReplies bounds the replies sent within one conversation; 0 means no bound.
	MaxReplies int

	Completer providers.Completer
	Model     string
	Logger    logging.Logger
}

func DefaultChatterConfig() ChatterConfig {
	return ChatterConfig{
		Task:        "Have a friendly conversation about artificial intelligence with other agents.",
		HistorySize: 100,
		MaxReplies:  4,
	}
}

// Chatter is a conversational agent. When idle it opens a conversation with
// a random peer; otherwise it answers each message it receives. Its text
// comes from a completer.
type Chatter struct {
	agent.Base
	cfg ChatterConfig

	history *memory.Stream
	replies map[string]int
}

func NewChatter(cfg ChatterConfig) *Chatter {
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	if cfg.Completer == nil {
		cfg.Completer = providers.Echo()
	}
	return &Chatter{
		cfg:     cfg,
		history: memory.NewStream(cfg.HistorySize),
		replies: make(map[string]int),
	}
}

func (c *Chatter) Init(ctx context.Context) {
	c.SetObservable(ObservableKind, KindChatter)
	c.history.Append("Task: " + c.cfg.Task)
}

func (c *Chatter) PerceptionFilter(map[string]string) bool { return false }

func (c *Chatter) Perception(context.Context, []agent.Snapshot) {}

func (c *Chatter) Action(ctx context.Context) {
	peer, ok := c.randomPeer()
	if !ok {
		return
	}
	prompt := fmt.Sprintf("Your name is %s. %s\nStart a conversation with %s. Reply with your opening message only.", c.Name(), c.cfg.Task, peer)
	text, ok := c.complete(ctx, prompt)
	if !ok {
		return
	}
	conv := messaging.NewConversationID()
	if err := c.Send(peer, text, conv); err != nil {
		c.cfg.Logger.Warn("message not sent", "agent", c.Name(), "to", peer, "error", err)
		return
	}
	c.history.Append(fmt.Sprintf("To %s: %s", peer, text))
}

func (c *Chatter) Reaction(ctx context.Context, msg messaging.Message) {
	c.history.Append(fmt.Sprintf("From %s: %s", msg.Sender(), msg.Content()))

	conv := msg.ConversationID()
	if c.cfg.MaxReplies > 0 && c.replies[conv] >= c.cfg.MaxReplies {
		return
	}
	prompt := fmt.Sprintf("Your name is %s. %s\n%s said: %s\nReply to %s.", c.Name(), c.cfg.Task, msg.Sender(), msg.Content(), msg.Sender())
	text, ok := c.complete(ctx, prompt)
	if !ok {
		return
	}
	if err := c.Send(msg.Sender(), text, conv); err != nil {
		c.cfg.Logger.Warn("reply not sent", "agent", c.Name(), "to", msg.Sender(), "error", err)
		return
	}
	c.replies[conv]++
	c.history.Append(fmt.Sprintf("To %s: %s", msg.Sender(), text))
}

// History returns the conversation log, oldest first.
func (c *Chatter) History() []string { return c.history.All() }

func (c *Chatter) complete(ctx context.Context, prompt string) (string, bool) {
	text, err := c.cfg.Completer.Complete(ctx, providers.Request{
		Model:   c.cfg.Model,
		System:  c.cfg.System,
		History: c.history.All(),
		Prompt:  prompt,
	})
	if err != nil {
		c.cfg.Logger.Warn("completion failed", "agent", c.Name(), "error", err)
		return "", false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return text, true
}

func (c *Chatter) randomPeer() (string, bool) {
	host := c.Host()
	names := host.AgentNames()
	if len(names) < 2 {
		return "", false
	}
	for i := 0; i < 4*len(names); i++ {
		name, err := host.RandomAgent()
		if err != nil {
			return "", false
		}
		if name != c.Name() {
			return name, true
		}
	}
	for _, name := range names {
		if name != c.Name() {
			return name, true
		}
	}
	return "", false
}
