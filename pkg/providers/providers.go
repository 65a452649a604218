package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrMissingAPIKey    = errors.New("missing API key")
	ErrEmptyCompletion  = errors.New("completion returned no content")
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrNoCannedResponse = errors.New("no canned responses configured")
)

// Request is a single completion call.
type Request struct {
	Model  string
	System string
	// History holds earlier turns of the conversation, oldest first.
	History []string
	Prompt  string
}

// Completer produces a text completion for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type ProviderParams struct {
	BaseURL string
	APIKey  string
}

type ProviderOption func(*ProviderParams)

func WithBaseURL(baseURL string) ProviderOption {
	return func(p *ProviderParams) {
		p.BaseURL = baseURL
	}
}

func WithAPIKey(apiKey string) ProviderOption {
	return func(p *ProviderParams) {
		p.APIKey = apiKey
	}
}

// New returns the completer registered under name: "openai", "gemini" or
// "static". Static completers answer with the prompt echoed back.
func New(ctx context.Context, name string, opts ...ProviderOption) (Completer, error) {
	switch strings.ToLower(name) {
	case "openai":
		return OpenAi(ctx, opts...), nil
	case "gemini", "google":
		return Gemini(ctx, opts...)
	case "static", "":
		return Echo(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
}

// Static answers from a fixed list of responses, cycling once exhausted.
// It stands in for a model in tests and offline runs.
type Static struct {
	mu        sync.Mutex
	responses []string
	next      int
	echo      bool
	calls     []Request
}

// NewStatic returns a completer replaying responses in order.
func NewStatic(responses ...string) *Static {
	return &Static{responses: responses}
}

// Echo returns a completer answering every request with its prompt.
func Echo() *Static {
	return &Static{echo: true}
}

func (s *Static) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, req)
	if s.echo {
		return req.Prompt, nil
	}
	if len(s.responses) == 0 {
		return "", ErrNoCannedResponse
	}
	resp := s.responses[s.next%len(s.responses)]
	s.next++
	return resp, nil
}

// Calls returns the requests received so far.
func (s *Static) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}
