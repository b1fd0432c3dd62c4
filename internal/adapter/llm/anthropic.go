package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"taxrag/internal/adapter/ratelimit"
	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// AnthropicClient uses the Messages API. System messages are lifted into the
// request's system field.
type AnthropicClient struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
	limiter     *ratelimit.Limiter
	logger      *slog.Logger
}

func NewAnthropicClient(opts Options) *AnthropicClient {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicClient{
		client:      anthropic.NewClient(reqOpts...),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   maxTokens,
		limiter:     opts.Limiter,
		logger:      opts.Logger,
	}
}

func (c *AnthropicClient) Chat(ctx context.Context, messages []port.Message) (string, error) {
	const op = "llm.anthropic"

	if err := c.limiter.Wait(ctx); err != nil {
		return "", domain.E(domain.KindLLM, op, err)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
	}
	for _, m := range messages {
		switch m.Role {
		case port.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case port.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		c.logger.Error("Anthropic request failed",
			slog.String("model", c.model),
			slog.String("error", err.Error()))
		return "", domain.E(domain.KindLLM, op, fmt.Errorf("request failed: %w", err))
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", domain.Errorf(domain.KindLLM, op, "no text in response")
	}
	return sb.String(), nil
}

func (c *AnthropicClient) ModelName() string {
	return c.model
}
