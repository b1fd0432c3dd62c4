package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"taxrag/internal/adapter/ratelimit"
	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// Converser is the part of the Bedrock runtime client the chat model uses.
type Converser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient talks to Bedrock models through the Converse API, which
// accepts the same user/assistant turns for every model family.
type BedrockClient struct {
	client      Converser
	model       string
	temperature float32
	maxTokens   int32
	limiter     *ratelimit.Limiter
	logger      *slog.Logger
}

func NewBedrockClient(client Converser, opts Options) *BedrockClient {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	maxTokens := int32(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &BedrockClient{
		client:      client,
		model:       opts.Model,
		temperature: float32(opts.Temperature),
		maxTokens:   maxTokens,
		limiter:     opts.Limiter,
		logger:      opts.Logger,
	}
}

func (c *BedrockClient) Chat(ctx context.Context, messages []port.Message) (string, error) {
	const op = "llm.bedrock"

	if err := c.limiter.Wait(ctx); err != nil {
		return "", domain.E(domain.KindLLM, op, err)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.model),
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.maxTokens),
			Temperature: aws.Float32(c.temperature),
		},
	}
	for _, m := range messages {
		if m.Role == port.RoleSystem {
			input.System = append(input.System, &types.SystemContentBlockMemberText{Value: m.Content})
			continue
		}
		role := types.ConversationRoleUser
		if m.Role == port.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		input.Messages = append(input.Messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}

	out, err := c.client.Converse(ctx, input)
	if err != nil {
		c.logger.Error("Bedrock request failed",
			slog.String("model", c.model),
			slog.String("error", err.Error()))
		return "", domain.E(domain.KindLLM, op, fmt.Errorf("request failed: %w", err))
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", domain.Errorf(domain.KindLLM, op, "response has no message")
	}
	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}
	if sb.Len() == 0 {
		return "", domain.Errorf(domain.KindLLM, op, "no text in response")
	}

	if out.Usage != nil {
		c.logger.Debug("Bedrock response",
			slog.String("model", c.model),
			slog.Int("input_tokens", int(aws.ToInt32(out.Usage.InputTokens))),
			slog.Int("output_tokens", int(aws.ToInt32(out.Usage.OutputTokens))))
	}
	return sb.String(), nil
}

func (c *BedrockClient) ModelName() string {
	return c.model
}
