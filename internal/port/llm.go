package port

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat prompt.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LLM represents a chat language model.
type LLM interface {
	// Chat sends the messages and returns the model's reply text.
	Chat(ctx context.Context, messages []Message) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
