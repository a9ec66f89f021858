// internal/agent/agent.go
package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/madanlalit/heimdall/internal/browser/dom"
	"github.com/madanlalit/heimdall/internal/config"
	"github.com/madanlalit/heimdall/internal/events"
	"github.com/madanlalit/heimdall/internal/llmclient"
	"github.com/madanlalit/heimdall/internal/tools"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	doneAction = "done"

	// ErrTooManyFailures is the Result.Error of a run stopped by the
	// consecutive failure limit.
	ErrTooManyFailures = "Too many consecutive failures"
)

// StateProvider captures the serialized page for a step.
type StateProvider interface {
	GetState(ctx context.Context) *dom.SerializedDOM
}

// ActionExecutor runs the model's tool calls. *tools.Registry implements it.
type ActionExecutor interface {
	Definitions() []tools.Definition
	SetDOM(state *dom.SerializedDOM)
	ExecuteJSON(ctx context.Context, name string, raw []byte) tools.ActionResult
}

// Stabilizer waits for in-flight network activity to drain.
type Stabilizer interface {
	WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error
}

// StepRecord is one executed tool call.
type StepRecord struct {
	Step    int                    `json:"step"`
	Action  string                 `json:"action"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Result is the outcome of a run.
type Result struct {
	ID            string          `json:"id"`
	Task          string          `json:"task"`
	Success       bool            `json:"success"`
	Done          bool            `json:"done"`
	Steps         int             `json:"steps"`
	TotalFailures int             `json:"total_failures"`
	Error         string          `json:"error,omitempty"`
	FinalMessage  string          `json:"final_message,omitempty"`
	History       []StepRecord    `json:"history"`
	Usage         llmclient.Usage `json:"usage"`
	Duration      time.Duration   `json:"duration"`
}

// Option customizes an Agent.
type Option func(*Agent)

// WithStabilizer makes each step wait, up to timeout, for the network to be
// quiet for quietPeriod before the page is captured.
func WithStabilizer(s Stabilizer, quietPeriod, timeout time.Duration) Option {
	return func(a *Agent) {
		a.stabilizer = s
		a.quietPeriod = quietPeriod
		a.stableTimeout = timeout
	}
}

// Agent drives the observe, decide, act loop for a task.
type Agent struct {
	cfg     config.AgentConfig
	llm     llmclient.Client
	actions ActionExecutor
	state   StateProvider
	bus     *events.Bus
	logger  *zap.Logger

	stabilizer    Stabilizer
	quietPeriod   time.Duration
	stableTimeout time.Duration
}

// New creates an agent. The bus may be nil.
func New(cfg config.AgentConfig, client llmclient.Client, actions ActionExecutor, state StateProvider, bus *events.Bus, logger *zap.Logger, opts ...Option) *Agent {
	a := &Agent{
		cfg:     cfg,
		llm:     client,
		actions: actions,
		state:   state,
		bus:     bus,
		logger:  logger.Named("agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// runState is the bookkeeping of a single Run.
type runState struct {
	res         *Result
	consecutive int
	reportedOK  bool
	tools       []llmclient.Tool
	logger      *zap.Logger
}

// Run executes steps until the task is done, the step limit is reached, or
// too many consecutive steps fail. The returned error is non-nil only when
// ctx ends the run; the partial result is returned with it.
func (a *Agent) Run(ctx context.Context, task string) (*Result, error) {
	res := &Result{ID: uuid.NewString(), Task: task, History: []StepRecord{}}
	rs := &runState{
		res:        res,
		reportedOK: true,
		tools:      ToolsFromDefinitions(a.actions.Definitions()),
		logger:     a.logger.With(zap.String("run_id", res.ID)),
	}
	start := time.Now()
	rs.logger.Info("Starting task.", zap.String("task", preview(task, 80)), zap.String("model", a.llm.Model()))

	for !res.Done {
		if res.Steps >= a.cfg.MaxSteps {
			rs.logger.Warn("Max steps reached.", zap.Int("max_steps", a.cfg.MaxSteps))
			break
		}
		if rs.consecutive >= a.cfg.MaxConsecutiveFailures {
			rs.logger.Error("Too many consecutive failures.", zap.Int("consecutive_failures", rs.consecutive))
			res.Error = ErrTooManyFailures
			break
		}
		if err := ctx.Err(); err != nil {
			res.Error = err.Error()
			res.Duration = time.Since(start)
			return res, err
		}

		res.Steps++
		a.step(ctx, rs, task)

		if !res.Done && a.cfg.StepDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(a.cfg.StepDelay):
			}
		}
	}

	res.Success = res.Done && res.Error == "" && rs.reportedOK
	res.Duration = time.Since(start)
	rs.logger.Info("Task finished.",
		zap.Bool("success", res.Success),
		zap.Int("steps", res.Steps),
		zap.Int("total_failures", res.TotalFailures),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func (a *Agent) step(ctx context.Context, rs *runState, task string) {
	n := rs.res.Steps
	logger := rs.logger.With(zap.Int("step", n))
	logger.Debug("Starting step.")
	a.bus.Emit(events.TypeStepStarted, events.Step{Number: n})

	stepCtx := ctx
	if a.cfg.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, a.cfg.StepTimeout)
		defer cancel()
	}

	a.waitForStability(stepCtx, logger)
	state := a.state.GetState(stepCtx)
	a.actions.SetDOM(state)

	history := rs.res.History
	if w := a.cfg.HistoryWindow; len(history) > w {
		history = history[len(history)-w:]
	}
	msgs := BuildMessages(a.cfg.SystemPrompt, task, state, history)

	resp, err := a.llm.Chat(stepCtx, llmclient.Request{
		Messages:   msgs,
		Tools:      rs.tools,
		ToolChoice: llmclient.ToolChoiceAuto,
	})
	if err != nil {
		rs.consecutive++
		logger.Error("LLM call failed.", zap.Error(err))
		a.bus.Emit(events.TypeError, events.Error{Source: "llm", Message: err.Error()})
		a.completeStep(n, false, "LLM call failed: "+err.Error())
		return
	}
	rs.res.Usage.PromptTokens += resp.Usage.PromptTokens
	rs.res.Usage.CompletionTokens += resp.Usage.CompletionTokens
	rs.res.Usage.TotalTokens += resp.Usage.TotalTokens

	if len(resp.ToolCalls) == 0 {
		// A reply without actions counts as a failed step.
		rs.consecutive++
		logger.Info("LLM replied without a tool call.", zap.String("content", preview(resp.Content, 200)))
		if claimsCompletion(resp.Content) {
			logger.Info("Reply claims the task is complete.")
			rs.res.Done = true
			rs.res.FinalMessage = resp.Content
		}
		a.completeStep(n, rs.res.Done, preview(resp.Content, 200))
		return
	}

	stepOK := true
	var summary string
	for _, call := range resp.ToolCalls {
		params, _ := tools.DecodeArgs([]byte(call.Arguments))
		result := a.actions.ExecuteJSON(stepCtx, call.Name, []byte(call.Arguments))
		rs.res.History = append(rs.res.History, StepRecord{
			Step:    n,
			Action:  call.Name,
			Params:  params,
			Success: result.Success,
			Message: result.Message,
			Error:   result.Error,
		})
		summary = call.Name + ": " + result.Summary()

		if !result.Success {
			stepOK = false
			rs.consecutive++
			rs.res.TotalFailures++
			logger.Warn("Action failed.", zap.String("action", call.Name), zap.String("error", result.Error))
			continue
		}

		rs.consecutive = 0
		if call.Name == doneAction || result.IsDone() {
			rs.res.Done = true
			rs.res.FinalMessage = result.Message
			if ok, present := result.Data["success"].(bool); present {
				rs.reportedOK = ok
			}
			break
		}
	}
	a.completeStep(n, stepOK, summary)
}

func (a *Agent) waitForStability(ctx context.Context, logger *zap.Logger) {
	if a.stabilizer == nil {
		return
	}
	waitCtx := ctx
	if a.stableTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, a.stableTimeout)
		defer cancel()
	}
	if err := a.stabilizer.WaitNetworkIdle(waitCtx, a.quietPeriod); err != nil {
		logger.Debug("Network did not settle before capture.", zap.Error(err))
	}
}

func (a *Agent) completeStep(n int, success bool, summary string) {
	a.bus.Emit(events.TypeStepCompleted, events.Step{Number: n, Success: success, Summary: summary})
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
