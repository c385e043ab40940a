package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangchainClient is a ChatModel backed by langchaingo's OpenAI provider.
type LangchainClient struct {
	llm   *openai.LLM
	model string
}

var _ ChatModel = (*LangchainClient)(nil)

// NewLangchainClient creates a langchaingo-backed client for an OpenAI-compatible endpoint.
// baseURL includes the API version, as with NewClient.
func NewLangchainClient(baseURL, apiKey, model string) (*LangchainClient, error) {
	llm, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(apiKey),
		openai.WithModel(model),
		openai.WithHTTPClient(http.DefaultClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create langchain client: %w", err)
	}
	return &LangchainClient{llm: llm, model: model}, nil
}

// ChatWithMessages returns the full completion for messages.
func (c *LangchainClient) ChatWithMessages(ctx context.Context, messages []Message, params ChatParams) (string, error) {
	resp, err := c.llm.GenerateContent(ctx, toMessageContent(messages), c.callOptions(params)...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Content, nil
}

// StreamChatWithMessages streams the completion, calling callback with each non-empty delta.
func (c *LangchainClient) StreamChatWithMessages(ctx context.Context, messages []Message, params ChatParams, callback func(chunk string) error) error {
	opts := append(c.callOptions(params), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		if err := callback(string(chunk)); err != nil {
			return fmt.Errorf("callback error: %w", err)
		}
		return nil
	}))

	if _, err := c.llm.GenerateContent(ctx, toMessageContent(messages), opts...); err != nil {
		return fmt.Errorf("failed to stream content: %w", err)
	}
	return nil
}

func (c *LangchainClient) callOptions(params ChatParams) []llms.CallOption {
	model := c.model
	if params.Model != "" {
		model = params.Model
	}
	opts := []llms.CallOption{llms.WithModel(model)}
	if params.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(float64(params.Temperature)))
	}
	if params.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(params.MaxTokens))
	}
	return opts
}

func toMessageContent(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		out = append(out, llms.TextParts(chatMessageType(m.Role), m.Content))
	}
	return out
}

func chatMessageType(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
