// internal/llmclient/anthropic.go
package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/madanlalit/heimdall/internal/config"
)

const (
	anthropicBaseURL      = "https://api.anthropic.com"
	anthropicVersion      = "2023-06-01"
	anthropicDefaultLimit = 4096
)

// AnthropicClient calls the Anthropic messages API.
type AnthropicClient struct {
	model       string
	apiKey      string
	endpoint    string
	temperature float32
	maxTokens   int
	transport   *httpTransport
	logger      *zap.Logger
}

type anthropicBlock struct {
	Type      string              `json:"type"`
	Text      string              `json:"text,omitempty"`
	ID        string              `json:"id,omitempty"`
	Name      string              `json:"name,omitempty"`
	Input     jsoniter.RawMessage `json:"input,omitempty"`
	ToolUseID string              `json:"tool_use_id,omitempty"`
	Content   string              `json:"content,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
}

type anthropicRequest struct {
	Model       string               `json:"model"`
	System      string               `json:"system,omitempty"`
	Messages    []anthropicMessage   `json:"messages"`
	MaxTokens   int                  `json:"max_tokens"`
	Temperature float32              `json:"temperature"`
	Tools       []anthropicTool      `json:"tools,omitempty"`
	ToolChoice  *anthropicToolChoice `json:"tool_choice,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewAnthropicClient builds a messages API client. cfg.Endpoint overrides
// the API base URL.
func NewAnthropicClient(cfg config.LLMModelConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	base := anthropicBaseURL
	if cfg.Endpoint != "" {
		base = cfg.Endpoint
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultLimit
	}

	named := logger.Named("llm_client.anthropic")
	return &AnthropicClient{
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		endpoint:    strings.TrimRight(base, "/") + "/v1/messages",
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		transport:   newHTTPTransport("anthropic", cfg.APITimeout, cfg.MaxRetries, named),
		logger:      named,
	}, nil
}

// Model returns the configured model name.
func (c *AnthropicClient) Model() string { return c.model }

// Chat sends one messages request. ResponseSchema is not supported and is ignored.
func (c *AnthropicClient) Chat(ctx context.Context, req Request) (*Response, error) {
	payload := c.buildPayload(req)

	headers := http.Header{}
	headers.Set("x-api-key", c.apiKey)
	headers.Set("anthropic-version", anthropicVersion)

	var out anthropicResponse
	if err := c.transport.postJSON(ctx, c.endpoint, headers, payload, &out); err != nil {
		return nil, err
	}

	resp := &Response{FinishReason: out.StopReason}
	var text []string
	for _, block := range out.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			args := string(block.Input)
			if args == "" || args == "null" {
				args = "{}"
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	resp.Content = strings.Join(text, "\n")

	if out.Usage != nil {
		resp.Usage = Usage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		}
		c.logger.Info("LLM generation complete.",
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		)
	}
	return resp, nil
}

func (c *AnthropicClient) buildPayload(req Request) anthropicRequest {
	payload := anthropicRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	var system []string
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleTool:
			payload.Messages = appendBlocks(payload.Messages, "user", anthropicBlock{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Content,
			})
		case RoleAssistant:
			var blocks []anthropicBlock
			if m.Content != "" {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: jsoniter.RawMessage(argumentsOrEmpty(tc.Arguments)),
				})
			}
			payload.Messages = appendBlocks(payload.Messages, "assistant", blocks...)
		default:
			payload.Messages = appendBlocks(payload.Messages, "user", anthropicBlock{Type: "text", Text: m.Content})
		}
	}
	payload.System = strings.Join(system, "\n\n")

	if len(req.Tools) > 0 && req.ToolChoice != ToolChoiceNone {
		for _, t := range req.Tools {
			payload.Tools = append(payload.Tools, anthropicTool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.Parameters,
			})
		}
		choice := "auto"
		if req.ToolChoice == ToolChoiceRequired {
			choice = "any"
		}
		payload.ToolChoice = &anthropicToolChoice{Type: choice}
	}
	return payload
}

// appendBlocks merges consecutive turns of the same role; the API requires
// user and assistant turns to alternate.
func appendBlocks(msgs []anthropicMessage, role string, blocks ...anthropicBlock) []anthropicMessage {
	if len(blocks) == 0 {
		return msgs
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == role {
		msgs[n-1].Content = append(msgs[n-1].Content, blocks...)
		return msgs
	}
	return append(msgs, anthropicMessage{Role: role, Content: blocks})
}
