// internal/tools/registry.go
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/madanlalit/heimdall/internal/browser/dom"
	"github.com/madanlalit/heimdall/internal/events"
)

// Handler executes an action. A returned error is an unexpected failure and
// is reported as a system error; expected failures are returned as Fail results.
type Handler func(ctx context.Context, env *Env, params Params) (ActionResult, error)

// Action is a registered tool the LLM can call.
type Action struct {
	Name        string
	Description string
	Params      ParamSchema
	Handler     Handler
}

// Definition is the provider neutral description of an action.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Env is what actions run against. The agent refreshes DOM before each step.
type Env struct {
	Browser        Browser
	Elements       Elements
	DOM            *dom.SerializedDOM
	AllowedDomains []string
	Prompter       HumanPrompter
	Retry          RetryPolicy
	Logger         *zap.Logger
}

// Registry holds the available actions and executes them by name.
type Registry struct {
	logger  *zap.Logger
	bus     *events.Bus
	limiter *rate.Limiter

	mu      sync.RWMutex
	actions map[string]Action
	env     *Env
}

// NewRegistry creates an empty registry. actionsPerSecond paces Execute;
// zero or less disables pacing. The bus may be nil.
func NewRegistry(logger *zap.Logger, bus *events.Bus, actionsPerSecond float64) *Registry {
	limit := rate.Inf
	if actionsPerSecond > 0 {
		limit = rate.Limit(actionsPerSecond)
	}
	return &Registry{
		logger:  logger.Named("tool_registry"),
		bus:     bus,
		limiter: rate.NewLimiter(limit, 1),
		actions: make(map[string]Action),
		env:     &Env{Retry: DefaultRetryPolicy()},
	}
}

// Register adds or replaces an action.
func (r *Registry) Register(a Action) error {
	if a.Name == "" {
		return fmt.Errorf("action name is required")
	}
	if a.Handler == nil {
		return fmt.Errorf("action %s has no handler", a.Name)
	}
	r.mu.Lock()
	r.actions[a.Name] = a
	r.mu.Unlock()
	r.logger.Debug("Registered action.", zap.String("action", a.Name))
	return nil
}

// SetEnv replaces the execution environment.
func (r *Registry) SetEnv(env *Env) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if env.Logger == nil {
		env.Logger = r.logger
	}
	r.env = env
}

// SetDOM updates the element list actions resolve indices against.
func (r *Registry) SetDOM(state *dom.SerializedDOM) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.env.DOM = state
}

// Has reports whether an action is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[name]
	return ok
}

// Names returns the registered action names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for n := range r.actions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Definitions describes every action for tool calling, sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.actions))
	for _, a := range r.actions {
		defs = append(defs, Definition{
			Name:        a.Name,
			Description: a.Description,
			Parameters:  a.Params.JSONSchema(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// ExecuteJSON decodes raw tool call arguments and executes the action.
func (r *Registry) ExecuteJSON(ctx context.Context, name string, raw []byte) ActionResult {
	args, err := DecodeArgs(raw)
	if err != nil {
		return Failf("Invalid parameters: %v", err)
	}
	return r.Execute(ctx, name, args)
}

// Execute validates args and runs the named action. It never returns an
// error: every failure, including a panicking handler, becomes a failed result.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (result ActionResult) {
	r.mu.RLock()
	a, ok := r.actions[name]
	env := *r.env
	r.mu.RUnlock()

	if !ok {
		return Failf("Unknown action: %s", name)
	}
	params, err := a.Params.Validate(args)
	if err != nil {
		return Failf("Invalid parameters: %v", err)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return Failf("System error: %v", err)
	}

	r.bus.Emit(events.TypeActionStarted, events.Action{Name: name, Params: params})
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Action panicked.", zap.String("action", name), zap.Any("panic", rec))
			result = Failf("System error: %v", rec)
		}
		r.logger.Debug("Action finished.",
			zap.String("action", name),
			zap.Bool("success", result.Success),
			zap.Duration("duration", time.Since(start)),
		)
		r.bus.Emit(events.TypeActionCompleted, events.Action{
			Name:    name,
			Params:  params,
			Success: result.Success,
			Message: result.Message,
			Error:   result.Error,
		})
	}()

	res, err := a.Handler(ctx, &env, params)
	if err != nil {
		r.logger.Error("Action failed unexpectedly.", zap.String("action", name), zap.Error(err))
		return Failf("System error: %v", err)
	}
	if res.Data == nil {
		res.Data = map[string]interface{}{}
	}
	return res
}
