// internal/llmclient/openai.go
package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/madanlalit/heimdall/internal/config"
)

// Base URLs of the OpenAI compatible chat completion APIs.
var openAIBaseURLs = map[config.LLMProvider]string{
	config.ProviderOpenAI:     "https://api.openai.com/v1",
	config.ProviderOpenRouter: "https://openrouter.ai/api/v1",
	config.ProviderGroq:       "https://api.groq.com/openai/v1",
	config.ProviderOllama:     "http://localhost:11434/v1",
}

const openRouterTitle = "Heimdall"

// OpenAIClient talks to any chat completions API shaped like OpenAI's.
type OpenAIClient struct {
	provider    config.LLMProvider
	model       string
	apiKey      string
	endpoint    string
	temperature float32
	maxTokens   int
	transport   *httpTransport
	logger      *zap.Logger
}

type oaMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	Name       string       `json:"name,omitempty"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
}

type oaToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function oaFunctionCall `json:"function"`
}

type oaFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaTool struct {
	Type     string        `json:"type"`
	Function oaFunctionDef `json:"function"`
}

type oaFunctionDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type oaResponseFormat struct {
	Type       string       `json:"type"`
	JSONSchema oaJSONSchema `json:"json_schema"`
}

type oaJSONSchema struct {
	Name   string                 `json:"name"`
	Schema map[string]interface{} `json:"schema"`
}

type oaRequest struct {
	Model          string            `json:"model"`
	Messages       []oaMessage       `json:"messages"`
	Tools          []oaTool          `json:"tools,omitempty"`
	ToolChoice     string            `json:"tool_choice,omitempty"`
	Temperature    float32           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat *oaResponseFormat `json:"response_format,omitempty"`
}

type oaResponse struct {
	Choices []struct {
		Message struct {
			Content   *string      `json:"content"`
			ToolCalls []oaToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAIClient builds a client for openai, openrouter, groq or ollama.
// cfg.Endpoint overrides the provider's base URL.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	base, ok := openAIBaseURLs[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("provider '%s' is not OpenAI compatible", cfg.Provider)
	}
	if cfg.Endpoint != "" {
		base = cfg.Endpoint
	}
	if cfg.APIKey == "" && cfg.Provider != config.ProviderOllama {
		return nil, fmt.Errorf("%s API key is required", cfg.Provider)
	}

	named := logger.Named("llm_client." + string(cfg.Provider))
	return &OpenAIClient{
		provider:    cfg.Provider,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		endpoint:    strings.TrimRight(base, "/") + "/chat/completions",
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		transport:   newHTTPTransport(string(cfg.Provider), cfg.APITimeout, cfg.MaxRetries, named),
		logger:      named,
	}, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string { return c.model }

// Chat sends one chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, req Request) (*Response, error) {
	payload := c.buildPayload(req)

	headers := http.Header{}
	if c.apiKey != "" {
		headers.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.provider == config.ProviderOpenRouter {
		headers.Set("X-Title", openRouterTitle)
	}

	c.logger.Debug("Sending chat request.",
		zap.Int("messages", len(payload.Messages)),
		zap.Int("tools", len(payload.Tools)),
	)

	var out oaResponse
	if err := c.transport.postJSON(ctx, c.endpoint, headers, payload, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%s API returned no choices", c.provider)
	}

	choice := out.Choices[0]
	resp := &Response{FinishReason: choice.FinishReason}
	if choice.Message.Content != nil {
		resp.Content = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if out.Usage != nil {
		resp.Usage = Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		}
		c.logger.Info("LLM generation complete.",
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
		)
	}
	return resp, nil
}

func (c *OpenAIClient) buildPayload(req Request) oaRequest {
	payload := oaRequest{
		Model:       c.model,
		Messages:    make([]oaMessage, 0, len(req.Messages)),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	for _, m := range req.Messages {
		msg := oaMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if m.Role == RoleTool {
			msg.Name = m.Name
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, oaToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: oaFunctionCall{Name: tc.Name, Arguments: argumentsOrEmpty(tc.Arguments)},
			})
		}
		payload.Messages = append(payload.Messages, msg)
	}

	if len(req.Tools) > 0 {
		for _, t := range req.Tools {
			payload.Tools = append(payload.Tools, oaTool{
				Type:     "function",
				Function: oaFunctionDef{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
			})
		}
		payload.ToolChoice = string(toolChoiceOrAuto(req.ToolChoice))
	}

	if req.ResponseSchema != nil {
		payload.ResponseFormat = &oaResponseFormat{
			Type:       "json_schema",
			JSONSchema: oaJSONSchema{Name: "response", Schema: req.ResponseSchema},
		}
	}
	return payload
}

func toolChoiceOrAuto(tc ToolChoice) ToolChoice {
	if tc == "" {
		return ToolChoiceAuto
	}
	return tc
}

func argumentsOrEmpty(args string) string {
	if strings.TrimSpace(args) == "" {
		return "{}"
	}
	return args
}
