package providers

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash-exp"

type GeminiClient struct {
	client *genai.Client
}

// Gemini builds a Google AI client. The key falls back to GEMINI_API_KEY.
func Gemini(ctx context.Context, opts ...ProviderOption) (*GeminiClient, error) {
	params := &ProviderParams{}
	for _, opt := range opts {
		opt(params)
	}

	apiKey := params.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w (set GEMINI_API_KEY)", ErrMissingAPIKey)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGoogleAI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiClient{
		client: client,
	}, nil
}

func (c *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = defaultGeminiModel
	}

	parts := make([]*genai.Part, 0, len(req.History)+2)
	if req.System != "" {
		parts = append(parts, &genai.Part{Text: req.System})
	}
	for _, h := range req.History {
		parts = append(parts, &genai.Part{Text: h})
	}
	parts = append(parts, &genai.Part{Text: req.Prompt})

	result, err := c.client.Models.GenerateContent(ctx, model, []*genai.Content{{Role: "user", Parts: parts}}, nil)
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}
	if result == nil || len(result.Candidates) == 0 {
		return "", ErrEmptyCompletion
	}

	var sb strings.Builder
	if content := result.Candidates[0].Content; content != nil {
		for _, part := range content.Parts {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return sb.String(), nil
}
