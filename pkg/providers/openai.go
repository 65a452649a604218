package providers

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1/"

type OpenAIClient struct {
	client  *openai.Client
	baseURL string
}

// OpenAi builds a client for any OpenAI compatible endpoint. The base URL
// and key fall back to OPENAI_API_BASE_URL and OPENAI_API_KEY.
func OpenAi(ctx context.Context, opts ...ProviderOption) *OpenAIClient {
	params := &ProviderParams{}
	for _, opt := range opts {
		opt(params)
	}

	if params.BaseURL == "" {
		params.BaseURL = os.Getenv("OPENAI_API_BASE_URL")
		if params.BaseURL == "" {
			params.BaseURL = defaultOpenAIBaseURL
		}
	}
	if params.APIKey == "" {
		params.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	reqOpts := []option.RequestOption{option.WithBaseURL(params.BaseURL)}
	if params.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(params.APIKey))
	}
	return &OpenAIClient{
		client:  openai.NewClient(reqOpts...),
		baseURL: params.BaseURL,
	}
}

func (c *OpenAIClient) BaseURL() string { return c.baseURL }

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, h := range req.History {
		messages = append(messages, openai.UserMessage(h))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	chatCompletion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F(messages),
		Model:    openai.F(req.Model),
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(chatCompletion.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return chatCompletion.Choices[0].Message.Content, nil
}
