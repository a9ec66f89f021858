// internal/agent/mocks_test.go
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/madanlalit/heimdall/internal/browser/dom"
	"github.com/madanlalit/heimdall/internal/llmclient"
)

// MockLLMClient mocks llmclient.Client.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Chat(ctx context.Context, req llmclient.Request) (*llmclient.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llmclient.Response), args.Error(1)
}

func (m *MockLLMClient) Model() string { return "mock-model" }

// staticState serves the same snapshot every step and counts captures.
type staticState struct {
	mu    sync.Mutex
	state *dom.SerializedDOM
	calls int
}

func (s *staticState) GetState(context.Context) *dom.SerializedDOM {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.state
}

// MockStabilizer records network idle waits.
type MockStabilizer struct {
	MockWaitNetworkIdle func(ctx context.Context, quiet time.Duration) error
	calls               int
}

func (m *MockStabilizer) WaitNetworkIdle(ctx context.Context, quiet time.Duration) error {
	m.calls++
	if m.MockWaitNetworkIdle != nil {
		return m.MockWaitNetworkIdle(ctx, quiet)
	}
	return nil
}

func toolReply(calls ...llmclient.ToolCall) *llmclient.Response {
	return &llmclient.Response{ToolCalls: calls, Usage: llmclient.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12}}
}

func textReply(content string) *llmclient.Response {
	return &llmclient.Response{Content: content}
}

func call(id, name, args string) llmclient.ToolCall {
	return llmclient.ToolCall{ID: id, Name: name, Arguments: args}
}
