package llm

import (
	"context"
	"sync"

	"taxrag/internal/port"
)

// EchoLLM replies with the content of the last message and records every
// prompt it receives. It backs offline runs and tests.
type EchoLLM struct {
	mu    sync.Mutex
	calls [][]port.Message
	reply func(messages []port.Message) (string, error)
}

func NewEchoLLM() *EchoLLM {
	return &EchoLLM{}
}

// WithReply overrides the reply function.
func (e *EchoLLM) WithReply(fn func(messages []port.Message) (string, error)) *EchoLLM {
	e.reply = fn
	return e
}

func (e *EchoLLM) Chat(ctx context.Context, messages []port.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	e.calls = append(e.calls, append([]port.Message(nil), messages...))
	e.mu.Unlock()

	if e.reply != nil {
		return e.reply(messages)
	}
	if len(messages) == 0 {
		return "", nil
	}
	return messages[len(messages)-1].Content, nil
}

// Calls returns the prompts received so far.
func (e *EchoLLM) Calls() [][]port.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]port.Message(nil), e.calls...)
}

func (e *EchoLLM) ModelName() string {
	return "echo"
}
