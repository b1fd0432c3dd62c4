// Package embedding provides text embedders for indexing and retrieval.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"taxrag/config"
	"taxrag/internal/adapter/bedrock"
	"taxrag/internal/adapter/ratelimit"
	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// Default endpoints per provider.
const (
	OpenAIBaseURL = "https://api.openai.com/v1"
	JinaBaseURL   = "https://api.jina.ai/v1"
	OllamaBaseURL = "http://localhost:11434/v1"
)

// New builds the embedder selected by cfg.Provider.
func New(cfg config.EmbeddingConfig, logger *slog.Logger) (port.Embedder, error) {
	const op = "embedding.new"

	opts := OpenAIOptions{
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		Dimension: cfg.EmbeddingDimension(),
		BatchSize: cfg.BatchSize,
		Limiter:   ratelimit.New(cfg.RequestsPerSecond),
		Logger:    logger,
	}

	switch cfg.Provider {
	case "openai", "jina", "":
		if opts.BaseURL == "" {
			opts.BaseURL = OpenAIBaseURL
			if cfg.Provider == "jina" {
				opts.BaseURL = JinaBaseURL
			}
		}
		keyEnv := cfg.APIKeyEnv
		if keyEnv == "" {
			keyEnv = "OPENAI_API_KEY"
			if cfg.Provider == "jina" {
				keyEnv = "JINA_API_KEY"
			}
		}
		opts.APIKey = os.Getenv(keyEnv)
		if opts.APIKey == "" {
			return nil, domain.Errorf(domain.KindInvalidInput, op,
				"API key not found in environment variable: %s", keyEnv)
		}
		return NewOpenAIEmbedder(opts), nil
	case "ollama":
		if opts.BaseURL == "" {
			opts.BaseURL = OllamaBaseURL
		}
		opts.Timeout = 2 * time.Minute
		return NewOpenAIEmbedder(opts), nil
	case "bedrock":
		client, err := bedrock.NewRuntime(context.Background(), cfg.Region, cfg.BaseURL)
		if err != nil {
			return nil, domain.E(domain.KindInvalidInput, op, err)
		}
		return NewTitanEmbedder(client, cfg.Model, opts.Dimension, opts.Limiter, logger), nil
	case "mock":
		return NewMockEmbedder(opts.Dimension), nil
	default:
		return nil, domain.E(domain.KindInvalidInput, op, fmt.Errorf("unknown embedding provider: %s", cfg.Provider))
	}
}
