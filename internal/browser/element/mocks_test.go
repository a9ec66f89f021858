package element

import (
	"context"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"

	"github.com/madanlalit/heimdall/api/schemas"
)

// mockExecutor records dispatched input and lets each test override any call.
// Unset functions behave like a healthy page with a 100x40 element at (10,20).
type mockExecutor struct {
	mu sync.Mutex

	MockContentQuads   func(ctx context.Context, backendID int64) ([]Quad, error)
	MockBoxModel       func(ctx context.Context, backendID int64) (Quad, error)
	MockScrollIntoView func(ctx context.Context, backendID int64) error
	MockResolveNode    func(ctx context.Context, backendID int64) (string, error)
	MockCallFunctionOn func(ctx context.Context, objectID, function string) (interface{}, error)
	MockDispatchMouse  func(ctx context.Context, data schemas.MouseEventData) error
	MockDispatchKey    func(ctx context.Context, data schemas.KeyEventData) error
	MockInsertText     func(ctx context.Context, text string) error
	MockFocus          func(ctx context.Context, backendID, nodeID int64) error
	MockDescribeNode   func(ctx context.Context, backendID int64) (*NodeInfo, error)
	MockLayoutViewport func(ctx context.Context) (schemas.Viewport, error)

	mouseEvents []schemas.MouseEventData
	keyEvents   []schemas.KeyEventData
	inserted    []string
	scripts     []string
	sleeps      []time.Duration
}

var _ Executor = (*mockExecutor)(nil)

func newMockExecutor() *mockExecutor { return &mockExecutor{} }

// elementQuad is the default 100x40 box at (10,20).
var elementQuad = Quad{10, 20, 110, 20, 110, 60, 10, 60}

func (m *mockExecutor) ContentQuads(ctx context.Context, backendID int64) ([]Quad, error) {
	if m.MockContentQuads != nil {
		return m.MockContentQuads(ctx, backendID)
	}
	return []Quad{elementQuad}, nil
}

func (m *mockExecutor) BoxModel(ctx context.Context, backendID int64) (Quad, error) {
	if m.MockBoxModel != nil {
		return m.MockBoxModel(ctx, backendID)
	}
	return elementQuad, nil
}

func (m *mockExecutor) ScrollIntoViewIfNeeded(ctx context.Context, backendID int64) error {
	if m.MockScrollIntoView != nil {
		return m.MockScrollIntoView(ctx, backendID)
	}
	return nil
}

func (m *mockExecutor) ResolveNode(ctx context.Context, backendID int64) (string, error) {
	if m.MockResolveNode != nil {
		return m.MockResolveNode(ctx, backendID)
	}
	return "obj-1", nil
}

// CallFunctionOn returns sensible page answers for each script unless overridden.
func (m *mockExecutor) CallFunctionOn(ctx context.Context, objectID, function string, res interface{}) error {
	m.mu.Lock()
	m.scripts = append(m.scripts, function)
	m.mu.Unlock()

	var value interface{}
	if m.MockCallFunctionOn != nil {
		v, err := m.MockCallFunctionOn(ctx, objectID, function)
		if err != nil {
			return err
		}
		value = v
	} else {
		switch {
		case function == scriptPointerEvents:
			value = "auto"
		case strings.Contains(function, "elementFromPoint"):
			value = map[string]interface{}{"ok": true, "interceptor": ""}
		default:
			value = nil
		}
	}

	if res == nil || value == nil {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, res)
}

func (m *mockExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	m.mu.Lock()
	m.mouseEvents = append(m.mouseEvents, data)
	m.mu.Unlock()
	if m.MockDispatchMouse != nil {
		return m.MockDispatchMouse(ctx, data)
	}
	return nil
}

func (m *mockExecutor) DispatchKeyEvent(ctx context.Context, data schemas.KeyEventData) error {
	m.mu.Lock()
	m.keyEvents = append(m.keyEvents, data)
	m.mu.Unlock()
	if m.MockDispatchKey != nil {
		return m.MockDispatchKey(ctx, data)
	}
	return nil
}

func (m *mockExecutor) InsertText(ctx context.Context, text string) error {
	m.mu.Lock()
	m.inserted = append(m.inserted, text)
	m.mu.Unlock()
	if m.MockInsertText != nil {
		return m.MockInsertText(ctx, text)
	}
	return nil
}

func (m *mockExecutor) Focus(ctx context.Context, backendID, nodeID int64) error {
	if m.MockFocus != nil {
		return m.MockFocus(ctx, backendID, nodeID)
	}
	return nil
}

func (m *mockExecutor) DescribeNode(ctx context.Context, backendID int64) (*NodeInfo, error) {
	if m.MockDescribeNode != nil {
		return m.MockDescribeNode(ctx, backendID)
	}
	return &NodeInfo{NodeID: 42, NodeName: "INPUT", Attributes: map[string]string{"type": "text"}}, nil
}

func (m *mockExecutor) LayoutViewport(ctx context.Context) (schemas.Viewport, error) {
	if m.MockLayoutViewport != nil {
		return m.MockLayoutViewport(ctx)
	}
	return schemas.Viewport{Width: 1280, Height: 800}, nil
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	m.mu.Lock()
	m.sleeps = append(m.sleeps, d)
	m.mu.Unlock()
	return ctx.Err()
}

// ran reports whether a script containing fragment was called.
func (m *mockExecutor) ran(fragment string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.scripts {
		if strings.Contains(s, fragment) {
			return true
		}
	}
	return false
}

// called reports whether exactly this script was called.
func (m *mockExecutor) called(script string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.scripts {
		if s == script {
			return true
		}
	}
	return false
}

func (m *mockExecutor) mouseTypes() []schemas.MouseEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schemas.MouseEventType, 0, len(m.mouseEvents))
	for _, e := range m.mouseEvents {
		out = append(out, e.Type)
	}
	return out
}
