package behaviours

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/boristopalov/colony/pkg/agent"
	"github.com/boristopalov/colony/pkg/logging"
	"github.com/boristopalov/colony/pkg/memory"
	"github.com/boristopalov/colony/pkg/messaging"
	"github.com/boristopalov/colony/pkg/providers"
)

const (
	// ActionDonate carries the donated amount as its only parameter.
	ActionDonate = "donate"
	// LedgerKey is the environment memory slot holding every Donation.
	LedgerKey = "donor.ledger"

	KindDonor           = "donor"
	ObservableKind      = "kind"
	ObservableResources = "resources"

	recipientHistoryDepth = 3
)

const (
	donorSystemPrompt = `Each player is given an initial endowment of units of a resource. Each turn, you may donate part of your resources to another player. The recipient receives a multiple of the number of units that the donor gave up. Your goal is to maximize the number of units you have after the final turn.`

	donorStrategyPrompt = `Your name is %s.
%s
As a donor, you will see what the recipient did in their most recent donations only. In the first turn there is no information about anyone's previous behavior. Before formulating your strategy, briefly think step by step about what would be a successful strategy in this game. Then describe your strategy briefly without explanation in one sentence that starts: My strategy will be.`

	donorDecisionPrompt = `Your name is %s. As you will recall, here is the strategy you decided to follow: "%s"

It is now turn %d. You may donate to %s. They currently have %.2f units of the valuable resource.

%s

You currently have %.2f units of the valuable resource.
How many units do you give up? Very briefly think step by step about how you apply your strategy in this situation and then provide your answer. Your answer should follow the string "ANSWER" like so: ANSWER:`

	noHistory = "There is no history of previous donations by this player."
)

var answerPattern = regexp.MustCompile(`ANSWER:\s*(\d*\.?\d+)`)

// Donation is one ledger entry.
type Donation struct {
	Turn      int
	Donor     string
	Recipient string
	Amount    float64
	Received  float64
}

func (d Donation) String() string {
	return fmt.Sprintf("Turn %d: %s donated %.2f to %s, who received %.2f", d.Turn, d.Donor, d.Amount, d.Recipient, d.Received)
}

type DonorConfig struct {
	Initial    float64
	Multiplier float64
	// Generosity is the fraction of resources donated when no completer is set,
	// or when the completer fails.
	Generosity  float64
	HistorySize int
	// Strategy is used as-is unless a completer generates one in Init.
	Strategy string
	// Advice from a previous generation, folded into the strategy prompt.
	Advice string

	Completer providers.Completer
	Model     string
	Logger    logging.Logger
}

func DefaultDonorConfig() DonorConfig {
	return DonorConfig{
		Initial:     10,
		Multiplier:  2,
		Generosity:  0.5,
		HistorySize: 100,
		Strategy:    "to donate half of my resources to everyone",
	}
}

// Donor plays the donor game. It publishes its resources, perceives other
// donors and, when idle, donates part of its resources to one of them. The
// recipient is credited the donation times the multiplier.
type Donor struct {
	agent.Base
	cfg DonorConfig

	mu        sync.Mutex
	resources float64
	strategy  string
	peers     map[string]float64
	history   *memory.Stream
}

func NewDonor(cfg DonorConfig) *Donor {
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1
	}
	return &Donor{
		cfg:       cfg,
		resources: cfg.Initial,
		strategy:  cfg.Strategy,
		history:   memory.NewStream(cfg.HistorySize),
	}
}

func (d *Donor) Init(ctx context.Context) {
	d.UseObservables(true)
	d.SetObservable(ObservableKind, KindDonor)
	d.publish()

	if d.cfg.Completer == nil {
		return
	}
	strategy, err := d.generateStrategy(ctx)
	if err != nil {
		d.cfg.Logger.Warn("strategy generation failed, keeping default", "agent", d.Name(), "error", err)
		return
	}
	d.mu.Lock()
	d.strategy = strategy
	d.mu.Unlock()
	d.cfg.Logger.Debug("strategy generated", "agent", d.Name(), "strategy", strategy)
}

func (d *Donor) PerceptionFilter(observed map[string]string) bool {
	return observed[ObservableKind] == KindDonor
}

func (d *Donor) Perception(ctx context.Context, observed []agent.Snapshot) {
	peers := make(map[string]float64, len(observed))
	for _, s := range observed {
		raw, _ := s.Get(ObservableResources)
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		peers[s.Name()] = r
	}
	d.mu.Lock()
	d.peers = peers
	d.mu.Unlock()
}

func (d *Donor) Action(ctx context.Context) {
	recipient, theirs, ok := d.pickRecipient()
	if !ok {
		return
	}

	d.mu.Lock()
	mine := d.resources
	d.mu.Unlock()

	amount := d.decide(ctx, recipient, theirs, mine)
	if amount <= 0 {
		d.history.Append(fmt.Sprintf("Turn %d: I kept all %.2f of my resources", d.Host().Turn(), mine))
		return
	}

	param := strconv.FormatFloat(amount, 'f', -1, 64)
	if err := d.SendMessage(recipient, ActionDonate, []string{param}, ""); err != nil {
		d.cfg.Logger.Warn("donation not sent", "agent", d.Name(), "error", err)
		return
	}

	d.mu.Lock()
	d.resources -= amount
	left := d.resources
	d.mu.Unlock()
	d.publish()

	donation := Donation{
		Turn:      d.Host().Turn(),
		Donor:     d.Name(),
		Recipient: recipient,
		Amount:    amount,
		Received:  amount * d.cfg.Multiplier,
	}
	memory.Update(d.Host().Memory(), LedgerKey, func(ledger []Donation) []Donation {
		return append(ledger, donation)
	})
	d.history.Append(fmt.Sprintf("Turn %d: I donated %.2f%% (%.2f) of my resources to %s, leaving me with %.2f",
		donation.Turn, 100*amount/mine, amount, recipient, left))
}

func (d *Donor) Reaction(ctx context.Context, msg messaging.Message) {
	if msg.Action() != ActionDonate {
		return
	}
	raw, ok := msg.Parameter(0)
	if !ok {
		d.cfg.Logger.Warn("donation without amount", "agent", d.Name(), "message", msg.String())
		return
	}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil || amount <= 0 {
		d.cfg.Logger.Warn("invalid donation", "agent", d.Name(), "message", msg.String())
		return
	}
	received := amount * d.cfg.Multiplier

	d.mu.Lock()
	d.resources += received
	total := d.resources
	d.mu.Unlock()
	d.publish()

	d.history.Append(fmt.Sprintf("Turn %d: I received %.2f (multiplied to %.2f) from %s, bringing my resources to %.2f",
		d.Host().Turn(), amount, received, msg.Sender(), total))
}

func (d *Donor) Resources() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resources
}

func (d *Donor) Strategy() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.strategy
}

// History returns the donor's own record of donations given and received.
func (d *Donor) History() []string { return d.history.All() }

func (d *Donor) publish() {
	d.SetObservable(ObservableResources, strconv.FormatFloat(d.Resources(), 'f', 2, 64))
}

// pickRecipient chooses a perceived donor through the environment's random
// source, falling back to the first perceived name.
func (d *Donor) pickRecipient() (string, float64, bool) {
	d.mu.Lock()
	peers := d.peers
	d.mu.Unlock()
	if len(peers) == 0 {
		return "", 0, false
	}

	host := d.Host()
	for i := 0; i < 4*len(host.AgentNames()); i++ {
		name, err := host.RandomAgent()
		if err != nil {
			break
		}
		if r, ok := peers[name]; ok {
			return name, r, true
		}
	}

	names := make([]string, 0, len(peers))
	for n := range peers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names[0], peers[names[0]], true
}

func (d *Donor) decide(ctx context.Context, recipient string, theirs, mine float64) float64 {
	amount := mine * d.cfg.Generosity
	if d.cfg.Completer != nil {
		prompt := fmt.Sprintf(donorDecisionPrompt,
			d.Name(),
			d.Strategy(),
			d.Host().Turn(),
			recipient,
			theirs,
			recipientHistory(d.Host().Memory(), recipient),
			mine,
		)
		response, err := d.cfg.Completer.Complete(ctx, providers.Request{
			Model:   d.cfg.Model,
			System:  donorSystemPrompt,
			History: d.history.All(),
			Prompt:  prompt,
		})
		if err == nil {
			amount, err = parseDonation(response)
		}
		if err != nil {
			d.cfg.Logger.Warn("donation decision failed, using generosity", "agent", d.Name(), "error", err)
			amount = mine * d.cfg.Generosity
		}
	}

	if amount > mine {
		return mine
	}
	if amount < 0 {
		return 0
	}
	return amount
}

func (d *Donor) generateStrategy(ctx context.Context) (string, error) {
	instruction := "Based on the description of the game, create a strategy that you will follow in the game."
	if d.cfg.Advice != "" {
		instruction = fmt.Sprintf("How would you approach the game?\nHere is the advice of the best-performing players of the previous generation, along with their final scores:\n%s\nModify this advice to create your own strategy.", d.cfg.Advice)
	}

	req := providers.Request{
		Model:  d.cfg.Model,
		System: donorSystemPrompt,
		Prompt: fmt.Sprintf(donorStrategyPrompt, d.Name(), instruction),
	}
	response, err := d.cfg.Completer.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to generate strategy: %w", err)
	}
	if strategy := extractStrategy(response); strategy != "" {
		return strategy, nil
	}

	req.Prompt = fmt.Sprintf(`Your previous response did not include the required format. Here was your response:

%s

Please reformulate your strategy so that it starts with exactly "My strategy will be". For example: "My strategy will be to donate 50%% initially and adjust based on reciprocity."`, response)
	response, err = d.cfg.Completer.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to generate strategy on retry: %w", err)
	}
	if strategy := extractStrategy(response); strategy != "" {
		return strategy, nil
	}
	return "", fmt.Errorf("no strategy found in response even after retry: %s", response)
}

// recipientHistory describes the most recent donations made by name.
func recipientHistory(store *memory.Store, name string) string {
	ledger, _ := memory.Get[[]Donation](store, LedgerKey)
	var lines []string
	for i := len(ledger) - 1; i >= 0 && len(lines) < recipientHistoryDepth; i-- {
		if ledger[i].Donor == name {
			lines = append(lines, ledger[i].String())
		}
	}
	if len(lines) == 0 {
		return noHistory
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n")
}

func parseDonation(response string) (float64, error) {
	matches := answerPattern.FindStringSubmatch(response)
	if len(matches) < 2 {
		return 0, fmt.Errorf("could not find answer in response: %s", response)
	}
	donation, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse donation amount: %w", err)
	}
	return donation, nil
}

func extractStrategy(response string) string {
	const prefix = "my strategy will be"
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(line), prefix) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	return ""
}
