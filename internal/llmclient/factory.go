// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/madanlalit/heimdall/internal/config"
)

// NewClient creates the client for cfg.Provider. An empty model falls back
// to the provider's default.
func NewClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (Client, error) {
	if cfg.Model == "" {
		cfg.Model = config.DefaultModels[cfg.Provider]
	}

	var (
		client Client
		err    error
	)
	switch cfg.Provider {
	case config.ProviderGemini:
		client, err = NewGeminiClient(ctx, cfg, logger)
	case config.ProviderAnthropic:
		client, err = NewAnthropicClient(cfg, logger)
	case config.ProviderOpenAI, config.ProviderOpenRouter, config.ProviderGroq, config.ProviderOllama:
		client, err = NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: %v", cfg.Provider, config.SupportedProviders)
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}
