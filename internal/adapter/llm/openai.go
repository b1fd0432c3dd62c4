package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"taxrag/internal/adapter/ratelimit"
	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// OpenAIClient is a chat client for any OpenAI-compatible
// /chat/completions endpoint (OpenAI, DeepSeek, Ollama).
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
	limiter     *ratelimit.Limiter
	logger      *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// Stats tracks usage across calls.
type Stats struct {
	TotalCalls        int
	TotalInputChars   int
	TotalOutputChars  int
	TotalInputTokens  int // estimated
	TotalOutputTokens int // estimated
}

type chatRequest struct {
	Model       string         `json:"model"`
	Messages    []port.Message `json:"messages"`
	Temperature float64        `json:"temperature"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message port.Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Options configures a chat client.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Limiter     *ratelimit.Limiter
	Logger      *slog.Logger
}

func NewOpenAIClient(opts Options) *OpenAIClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &OpenAIClient{
		baseURL:     opts.BaseURL,
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		client:      &http.Client{Timeout: opts.Timeout},
		limiter:     opts.Limiter,
		logger:      opts.Logger,
	}
}

func (c *OpenAIClient) Chat(ctx context.Context, messages []port.Message) (string, error) {
	out, err := c.chat(ctx, messages)
	if err != nil {
		c.logger.Error("Chat completion failed",
			slog.String("model", c.model),
			slog.String("error", err.Error()))
		return "", domain.E(domain.KindLLM, "llm.openai", err)
	}
	return out, nil
}

func (c *OpenAIClient) chat(ctx context.Context, messages []port.Message) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	inputChars := 0
	for _, msg := range messages {
		inputChars += len(msg.Content)
	}

	jsonData, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API returned status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}

	output := chatResp.Choices[0].Message.Content

	c.mu.Lock()
	c.stats.TotalCalls++
	c.stats.TotalInputChars += inputChars
	c.stats.TotalOutputChars += len(output)
	// ~4 chars per token for English
	c.stats.TotalInputTokens += inputChars / 4
	c.stats.TotalOutputTokens += len(output) / 4
	c.mu.Unlock()

	return output, nil
}

// Stats returns a snapshot of usage so far.
func (c *OpenAIClient) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *OpenAIClient) ModelName() string {
	return c.model
}
