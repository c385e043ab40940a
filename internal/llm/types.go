package llm

import "context"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams holds parameters for chat completion requests.
type ChatParams struct {
	// Model specifies the model to use. If empty, the client's default model is used.
	Model string

	// MaxTokens specifies the maximum number of tokens to generate.
	// If 0, no limit is applied.
	MaxTokens int

	// Temperature controls the randomness of the output.
	// If 0, the provider default is used.
	Temperature float32
}

// ChatModel is implemented by every LLM provider the answering engine can use.
type ChatModel interface {
	// ChatWithMessages returns the full completion for messages.
	ChatWithMessages(ctx context.Context, messages []Message, params ChatParams) (string, error)
	// StreamChatWithMessages calls callback with each non-empty delta as it arrives.
	StreamChatWithMessages(ctx context.Context, messages []Message, params ChatParams, callback func(chunk string) error) error
}
