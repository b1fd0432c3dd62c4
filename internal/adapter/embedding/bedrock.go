package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"taxrag/internal/adapter/ratelimit"
	"taxrag/internal/domain"
)

// ModelInvoker is the part of the Bedrock runtime client the embedder uses.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// TitanEmbedder embeds with Amazon Titan text models. Titan takes one input
// per request.
type TitanEmbedder struct {
	client    ModelInvoker
	model     string
	dimension int
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
}

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize,omitempty"`
}

type titanResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

func NewTitanEmbedder(client ModelInvoker, model string, dimension int, limiter *ratelimit.Limiter, logger *slog.Logger) *TitanEmbedder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TitanEmbedder{
		client:    client,
		model:     model,
		dimension: dimension,
		limiter:   limiter,
		logger:    logger,
	}
}

func (e *TitanEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := e.embedOne(ctx, text)
		if err != nil {
			e.logger.Error("Embedding request failed",
				slog.String("model", e.model),
				slog.Int("input", i),
				slog.String("error", err.Error()))
			return nil, domain.E(domain.KindEmbedding, "embedding.titan", err)
		}
		out = append(out, vec)
	}
	return out, nil
}

func (e *TitanEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := titanRequest{InputText: text}
	// v1 rejects the sizing fields
	if strings.Contains(e.model, "titan-embed-text-v2") {
		req.Dimensions = e.dimension
		req.Normalize = true
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	var parsed titanResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response (body: %s): %w", preview(resp.Body), err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("response has no embedding")
	}
	if e.dimension > 0 && len(parsed.Embedding) != e.dimension {
		return nil, fmt.Errorf("embedding has dimension %d, expected %d", len(parsed.Embedding), e.dimension)
	}
	return parsed.Embedding, nil
}

func (e *TitanEmbedder) Dimension() int {
	return e.dimension
}

func (e *TitanEmbedder) ModelName() string {
	return e.model
}
