// internal/llmclient/factory_test.go
package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/madanlalit/heimdall/internal/config"
)

func TestNewClient(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	tests := []struct {
		provider config.LLMProvider
		want     interface{}
	}{
		{config.ProviderOpenAI, &OpenAIClient{}},
		{config.ProviderOpenRouter, &OpenAIClient{}},
		{config.ProviderGroq, &OpenAIClient{}},
		{config.ProviderOllama, &OpenAIClient{}},
		{config.ProviderAnthropic, &AnthropicClient{}},
		{config.ProviderGemini, &GeminiClient{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			client, err := NewClient(ctx, config.LLMModelConfig{Provider: tt.provider, APIKey: "k"}, logger)
			require.NoError(t, err)
			assert.IsType(t, tt.want, client)
			assert.Equal(t, config.DefaultModels[tt.provider], client.Model())
		})
	}

	t.Run("explicit model", func(t *testing.T) {
		client, err := NewClient(ctx, config.LLMModelConfig{Provider: config.ProviderOpenAI, APIKey: "k", Model: "gpt-4o-mini"}, logger)
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", client.Model())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewClient(ctx, config.LLMModelConfig{Provider: "mistral", APIKey: "k"}, logger)
		assert.ErrorContains(t, err, "unknown or unsupported LLM provider configured: 'mistral'")
	})

	t.Run("missing key", func(t *testing.T) {
		client, err := NewClient(ctx, config.LLMModelConfig{Provider: config.ProviderAnthropic}, logger)
		assert.Error(t, err)
		assert.Nil(t, client)
	})
}
