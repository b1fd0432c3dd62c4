// Package llm provides chat model clients.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"taxrag/config"
	"taxrag/internal/adapter/bedrock"
	"taxrag/internal/adapter/ratelimit"
	"taxrag/internal/domain"
	"taxrag/internal/port"
)

var providers = map[string]struct {
	baseURL   string
	keyEnvVar string
}{
	"openai":    {"https://api.openai.com/v1", "OPENAI_API_KEY"},
	"deepseek":  {"https://api.deepseek.com/v1", "DEEPSEEK_API_KEY"},
	"ollama":    {"http://localhost:11434/v1", ""},
	"anthropic": {"", "ANTHROPIC_API_KEY"},
}

// New builds the chat client selected by cfg.Provider.
func New(cfg config.LLMConfig, logger *slog.Logger) (port.LLM, error) {
	const op = "llm.new"

	switch cfg.Provider {
	case "echo":
		return NewEchoLLM(), nil
	case "bedrock":
		client, err := bedrock.NewRuntime(context.Background(), cfg.Region, cfg.BaseURL)
		if err != nil {
			return nil, domain.E(domain.KindInvalidInput, op, err)
		}
		return NewBedrockClient(client, Options{
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Limiter:     ratelimit.New(cfg.RequestsPerSecond),
			Logger:      logger,
		}), nil
	}

	p, ok := providers[cfg.Provider]
	if !ok && cfg.BaseURL == "" {
		return nil, domain.E(domain.KindInvalidInput, op,
			fmt.Errorf("unknown provider: %s (set llm.base_url for custom endpoints)", cfg.Provider))
	}

	opts := Options{
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
		Limiter:     ratelimit.New(cfg.RequestsPerSecond),
		Logger:      logger,
	}
	if opts.BaseURL == "" {
		opts.BaseURL = p.baseURL
	}

	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = p.keyEnvVar
	}
	if keyEnv != "" {
		opts.APIKey = os.Getenv(keyEnv)
		if opts.APIKey == "" && cfg.Provider != "ollama" {
			return nil, domain.Errorf(domain.KindInvalidInput, op, "API key not found. Set %s environment variable", keyEnv)
		}
	}

	if cfg.Provider == "anthropic" {
		return NewAnthropicClient(opts), nil
	}
	return NewOpenAIClient(opts), nil
}
