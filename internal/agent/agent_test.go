// internal/agent/agent_test.go
package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/madanlalit/heimdall/internal/browser/dom"
	"github.com/madanlalit/heimdall/internal/config"
	"github.com/madanlalit/heimdall/internal/events"
	"github.com/madanlalit/heimdall/internal/llmclient"
	"github.com/madanlalit/heimdall/internal/tools"
)

type fixture struct {
	agent *Agent
	llm   *MockLLMClient
	state *staticState
	bus   *events.Bus

	mu       sync.Mutex
	requests []llmclient.Request
}

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		MaxSteps:               10,
		MaxConsecutiveFailures: 3,
		StepTimeout:            time.Second,
		HistoryWindow:          5,
	}
}

// setupAgent wires an agent to a real registry holding a fake click action
// and the stock done action.
func setupAgent(t *testing.T, cfg config.AgentConfig, opts ...Option) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	bus := events.NewBus(logger)
	t.Cleanup(bus.Shutdown)

	reg := tools.NewRegistry(logger, bus, 0)
	require.NoError(t, reg.Register(tools.Action{
		Name:        "click",
		Description: "Click element by index from the DOM list",
		Params:      tools.ParamSchema{{Name: "index", Type: tools.TypeInteger, Required: true}},
		Handler: func(_ context.Context, env *tools.Env, p tools.Params) (tools.ActionResult, error) {
			idx := p.Int("index")
			if env.DOM == nil {
				return tools.Fail("No page state"), nil
			}
			if _, ok := env.DOM.SelectorMap[idx]; !ok {
				return tools.Failf("Invalid element index: %d", idx), nil
			}
			return tools.Ok("Clicked element", nil), nil
		},
	}))
	for _, a := range tools.DefaultActions() {
		if a.Name == "done" {
			require.NoError(t, reg.Register(a))
		}
	}

	state := &staticState{state: &dom.SerializedDOM{
		Text:         "[1]<button>Search</button>\n[2]<input placeholder=Query />",
		SelectorMap:  map[int]dom.SelectorEntry{1: {BackendID: 11, Tag: "button"}, 2: {BackendID: 12, Tag: "input"}},
		ElementCount: 2,
	}}

	f := &fixture{llm: new(MockLLMClient), state: state, bus: bus}
	f.agent = New(cfg, f.llm, reg, state, bus, logger, opts...)
	return f
}

// expect queues one reply and records the request it answers.
func (f *fixture) expect(resp *llmclient.Response, err error) *mock.Call {
	return f.llm.On("Chat", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		f.mu.Lock()
		f.requests = append(f.requests, args.Get(1).(llmclient.Request))
		f.mu.Unlock()
	}).Return(resp, err)
}

func (f *fixture) userPrompt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i].Messages[1].Content
}

func TestAgent_Run_CompletesWithDone(t *testing.T) {
	f := setupAgent(t, testAgentConfig())
	f.expect(toolReply(call("c1", "click", `{"index": 1}`)), nil).Once()
	f.expect(toolReply(call("c2", "done", `{"message": "Search submitted"}`)), nil).Once()

	res, err := f.agent.Run(context.Background(), "search for chromedp")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.Done)
	assert.Empty(t, res.Error)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, "Search submitted", res.FinalMessage)
	assert.Equal(t, 24, res.Usage.TotalTokens)
	assert.Equal(t, 2, f.state.calls)
	assert.NotEmpty(t, res.ID)

	require.Len(t, res.History, 2)
	assert.Equal(t, StepRecord{Step: 1, Action: "click", Params: map[string]interface{}{"index": float64(1)}, Success: true, Message: "Clicked element"}, res.History[0])
	assert.Equal(t, "done", res.History[1].Action)

	first := f.requests[0]
	assert.Equal(t, llmclient.ToolChoiceAuto, first.ToolChoice)
	require.Len(t, first.Tools, 2)
	assert.Equal(t, "click", first.Tools[0].Name)
	assert.Equal(t, "done", first.Tools[1].Name)
	assert.Equal(t, DefaultSystemPrompt, first.Messages[0].Content)
	assert.Contains(t, f.userPrompt(0), "Task: search for chromedp")
	assert.NotContains(t, f.userPrompt(0), "Recent actions")
	assert.Contains(t, f.userPrompt(1), "Recent actions:\n- ✓ click({\"index\":1})\n")
	f.llm.AssertExpectations(t)
}

func TestAgent_Run_StopsAfterConsecutiveFailures(t *testing.T) {
	f := setupAgent(t, testAgentConfig())
	f.expect(toolReply(call("c", "click", `{"index": 99}`)), nil)

	res, err := f.agent.Run(context.Background(), "click the missing thing")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.False(t, res.Done)
	assert.Equal(t, ErrTooManyFailures, res.Error)
	assert.Equal(t, 3, res.Steps)
	assert.Equal(t, 3, res.TotalFailures)
	assert.Equal(t, "Invalid element index: 99", res.History[0].Error)
	assert.Contains(t, f.userPrompt(2), "- ✗ click({\"index\":99}): Invalid element index: 99\n")
}

func TestAgent_Run_SuccessResetsFailureStreak(t *testing.T) {
	f := setupAgent(t, testAgentConfig())
	bad := toolReply(call("c", "click", `{"index": 99}`))
	good := toolReply(call("c", "click", `{"index": 2}`))
	f.expect(bad, nil).Twice()
	f.expect(good, nil).Once()
	f.expect(bad, nil).Twice()
	f.expect(toolReply(call("d", "done", `{}`)), nil).Once()

	res, err := f.agent.Run(context.Background(), "task")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 6, res.Steps)
	assert.Equal(t, 4, res.TotalFailures)
	assert.Equal(t, "Task completed", res.FinalMessage)
}

func TestAgent_Run_MaxSteps(t *testing.T) {
	cfg := testAgentConfig()
	cfg.MaxSteps = 3
	f := setupAgent(t, cfg)
	f.expect(toolReply(call("c", "click", `{"index": 1}`)), nil)

	res, err := f.agent.Run(context.Background(), "task")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Steps)
	assert.False(t, res.Done)
	assert.False(t, res.Success)
	assert.Empty(t, res.Error)
	f.llm.AssertNumberOfCalls(t, "Chat", 3)
}

func TestAgent_Run_TextReplies(t *testing.T) {
	t.Run("completion claim ends the run", func(t *testing.T) {
		f := setupAgent(t, testAgentConfig())
		f.expect(textReply("The search has been completed."), nil).Once()

		res, err := f.agent.Run(context.Background(), "task")
		require.NoError(t, err)
		assert.True(t, res.Done)
		assert.True(t, res.Success)
		assert.Equal(t, 1, res.Steps)
		assert.Equal(t, "The search has been completed.", res.FinalMessage)
		assert.Empty(t, res.History)
	})

	t.Run("chatter counts as failure", func(t *testing.T) {
		cfg := testAgentConfig()
		cfg.MaxConsecutiveFailures = 2
		f := setupAgent(t, cfg)
		f.expect(textReply("I should look at the page first."), nil)

		res, err := f.agent.Run(context.Background(), "task")
		require.NoError(t, err)
		assert.Equal(t, ErrTooManyFailures, res.Error)
		assert.Equal(t, 2, res.Steps)
		assert.Zero(t, res.TotalFailures)
	})
}

func TestAgent_Run_LLMErrors(t *testing.T) {
	cfg := testAgentConfig()
	cfg.MaxConsecutiveFailures = 2
	f := setupAgent(t, cfg)

	var errorsSeen []events.Error
	f.bus.On(events.TypeError, func(e events.Event) {
		errorsSeen = append(errorsSeen, e.Payload.(events.Error))
	})
	f.expect(nil, errors.New("openai API error: status 503: overloaded"))

	res, err := f.agent.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, ErrTooManyFailures, res.Error)
	assert.Equal(t, 2, res.Steps)
	require.Len(t, errorsSeen, 2)
	assert.Equal(t, "llm", errorsSeen[0].Source)
}

func TestAgent_Run_DoneReportsFailure(t *testing.T) {
	f := setupAgent(t, testAgentConfig())
	f.expect(toolReply(call("d", "done", `{"message": "Item is out of stock", "success": false}`)), nil).Once()

	res, err := f.agent.Run(context.Background(), "buy the item")
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.False(t, res.Success)
	assert.Empty(t, res.Error)
	assert.Equal(t, "Item is out of stock", res.FinalMessage)
}

func TestAgent_Run_MultipleCallsStopAtDone(t *testing.T) {
	f := setupAgent(t, testAgentConfig())
	f.expect(toolReply(
		call("a", "click", `{"index": 1}`),
		call("b", "done", `{}`),
		call("c", "click", `{"index": 2}`),
	), nil).Once()

	res, err := f.agent.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.History, 2)
	assert.Equal(t, "done", res.History[1].Action)
}

func TestAgent_Run_BadArguments(t *testing.T) {
	f := setupAgent(t, testAgentConfig())
	f.expect(toolReply(call("a", "click", `{index: 1`)), nil).Once()
	f.expect(toolReply(call("b", "done", ``)), nil).Once()

	res, err := f.agent.Run(context.Background(), "task")
	require.NoError(t, err)
	require.Len(t, res.History, 2)
	assert.False(t, res.History[0].Success)
	assert.Nil(t, res.History[0].Params)
	assert.Contains(t, res.History[0].Error, "Invalid parameters")
	assert.Equal(t, 1, res.TotalFailures)
	assert.True(t, res.Success)
}

func TestAgent_Run_ContextCancellation(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		f := setupAgent(t, testAgentConfig())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := f.agent.Run(ctx, "task")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, res.Steps)
		assert.Equal(t, context.Canceled.Error(), res.Error)
		f.llm.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
	})

	t.Run("during a step", func(t *testing.T) {
		f := setupAgent(t, testAgentConfig())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f.expect(toolReply(call("a", "click", `{"index": 1}`)), nil).Run(func(mock.Arguments) { cancel() })

		res, err := f.agent.Run(ctx, "task")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, res.Steps)
		assert.False(t, res.Success)
	})
}

func TestAgent_Run_PublishesStepEvents(t *testing.T) {
	f := setupAgent(t, testAgentConfig())
	var got []string
	f.bus.On(events.TypeStepStarted, func(e events.Event) {
		got = append(got, "start")
		assert.Equal(t, len(got)/2+1, e.Payload.(events.Step).Number)
	})
	f.bus.On(events.TypeStepCompleted, func(e events.Event) {
		step := e.Payload.(events.Step)
		got = append(got, "end")
		if step.Number == 1 {
			assert.False(t, step.Success)
			assert.Equal(t, "click: Invalid element index: 7", step.Summary)
		}
	})
	f.expect(toolReply(call("a", "click", `{"index": 7}`)), nil).Once()
	f.expect(toolReply(call("b", "done", `{}`)), nil).Once()

	_, err := f.agent.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "end", "start", "end"}, got)
}

func TestAgent_Run_WaitsForNetworkIdle(t *testing.T) {
	stab := &MockStabilizer{MockWaitNetworkIdle: func(ctx context.Context, quiet time.Duration) error {
		assert.Equal(t, 500*time.Millisecond, quiet)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return context.DeadlineExceeded
	}}
	f := setupAgent(t, testAgentConfig(), WithStabilizer(stab, 500*time.Millisecond, time.Second))
	f.expect(toolReply(call("a", "click", `{"index": 1}`)), nil).Once()
	f.expect(toolReply(call("b", "done", `{}`)), nil).Once()

	res, err := f.agent.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, stab.calls)
}

func TestAgent_Run_HistoryWindow(t *testing.T) {
	cfg := testAgentConfig()
	cfg.HistoryWindow = 2
	cfg.SystemPrompt = "Be terse."
	f := setupAgent(t, cfg)
	f.expect(toolReply(call("a", "click", `{"index": 1}`)), nil).Once()
	f.expect(toolReply(call("b", "click", `{"index": 2}`)), nil).Once()
	f.expect(toolReply(call("c", "click", `{"index": 98}`)), nil).Once()
	f.expect(toolReply(call("d", "done", `{}`)), nil).Once()

	_, err := f.agent.Run(context.Background(), "task")
	require.NoError(t, err)

	prompt := f.userPrompt(3)
	assert.NotContains(t, prompt, `click({"index":1})`)
	assert.Contains(t, prompt, "- ✓ click({\"index\":2})\n- ✗ click({\"index\":98}): Invalid element index: 98\n")
	assert.Equal(t, "Be terse.", f.requests[3].Messages[0].Content)
}
