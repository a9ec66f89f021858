// internal/llmclient/types.go
package llmclient

import (
	"context"
	"fmt"
	"net/http"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolChoice controls whether the model may, must or must not call tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
	ToolChoiceNone     ToolChoice = "none"
)

// Message is one turn of the conversation in provider neutral form.
type Message struct {
	Role    Role
	Content string
	// ToolCalls are the calls an assistant message made.
	ToolCalls []ToolCall
	// ToolCallID and Name identify the call a tool message answers.
	ToolCallID string
	Name       string
}

// ToolCall is a function call requested by the model. Arguments is the raw
// JSON object text.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Tool describes a callable function. Parameters is a JSON schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Request is a single chat completion call.
type Request struct {
	Messages   []Message
	Tools      []Tool
	ToolChoice ToolChoice
	// ResponseSchema asks for a JSON reply matching the schema. Providers
	// without structured output support ignore it.
	ResponseSchema map[string]interface{}
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the model's reply: text, tool calls, or both.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// Client is implemented by every provider.
type Client interface {
	Chat(ctx context.Context, req Request) (*Response, error)
	// Model returns the model name requests are sent to.
	Model() string
}

// APIError is a non-success HTTP reply from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Retryable reports whether the status is worth another attempt.
func (e *APIError) Retryable() bool {
	return isRetryableStatus(e.StatusCode)
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable:
		return true
	}
	return false
}
