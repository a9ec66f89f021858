// internal/llmclient/gemini.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/madanlalit/heimdall/internal/config"
)

// GeminiClient calls Gemini through the genai SDK.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	retry       retrier
	logger      *zap.Logger
}

// NewGeminiClient creates the SDK client. cfg.Endpoint overrides the API base URL.
func NewGeminiClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.Endpoint},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	named := logger.Named("llm_client.gemini")
	return &GeminiClient{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   int32(cfg.MaxTokens),
		retry:       newRetrier(named, cfg.MaxRetries),
		logger:      named,
	}, nil
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string { return c.model }

// Chat sends one generateContent request.
func (c *GeminiClient) Chat(ctx context.Context, req Request) (*Response, error) {
	contents, genCfg, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	var result *genai.GenerateContentResponse
	err = c.retry.do(ctx, func() error {
		res, err := c.client.Models.GenerateContent(ctx, c.model, contents, genCfg)
		if err != nil {
			var apiErr genai.APIError
			if errors.As(err, &apiErr) {
				wrapped := &APIError{Provider: "gemini", StatusCode: apiErr.Code, Message: apiErr.Message}
				if wrapped.Retryable() {
					return wrapped
				}
				return backoff.Permanent(wrapped)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.parseResponse(result)
}

func (c *GeminiClient) buildRequest(req Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	}
	if c.maxTokens > 0 {
		genCfg.MaxOutputTokens = c.maxTokens
	}

	var system []string
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args := map[string]any{}
				if err := json.Unmarshal([]byte(argumentsOrEmpty(tc.Arguments)), &args); err != nil {
					return nil, nil, fmt.Errorf("tool call %s has invalid arguments: %w", tc.Name, err)
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		case RoleTool:
			name := m.Name
			if name == "" {
				name = "tool"
			}
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     name,
				Response: map[string]any{"result": m.Content},
			}}
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		genCfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		genCfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}

		mode := genai.FunctionCallingConfigModeAuto
		switch req.ToolChoice {
		case ToolChoiceRequired:
			mode = genai.FunctionCallingConfigModeAny
		case ToolChoiceNone:
			mode = genai.FunctionCallingConfigModeNone
		}
		genCfg.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode}}
	}

	if req.ResponseSchema != nil {
		genCfg.ResponseMIMEType = "application/json"
		genCfg.ResponseJsonSchema = req.ResponseSchema
	}
	return contents, genCfg, nil
}

func (c *GeminiClient) parseResponse(res *genai.GenerateContentResponse) (*Response, error) {
	if res == nil || len(res.Candidates) == 0 {
		if res != nil && res.PromptFeedback != nil && res.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("gemini API blocked the request (Reason: %s)", res.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("gemini API returned no candidates")
	}

	cand := res.Candidates[0]
	resp := &Response{FinishReason: string(cand.FinishReason)}
	if cand.Content != nil {
		var text []string
		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				args := "{}"
				if len(part.FunctionCall.Args) > 0 {
					b, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						return nil, fmt.Errorf("failed to encode function call arguments: %w", err)
					}
					args = string(b)
				}
				id := part.FunctionCall.ID
				if id == "" {
					id = "call_" + uuid.NewString()
				}
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: id, Name: part.FunctionCall.Name, Arguments: args})
			case part.Text != "" && !part.Thought:
				text = append(text, part.Text)
			}
		}
		resp.Content = strings.Join(text, "")
	}

	if u := res.UsageMetadata; u != nil {
		resp.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
		c.logger.Info("LLM generation complete.",
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
		)
	}
	return resp, nil
}
