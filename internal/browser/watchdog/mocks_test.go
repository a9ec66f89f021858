// internal/browser/watchdog/mocks_test.go
package watchdog

import (
	"context"
	"sync"

	"github.com/chromedp/chromedp"
)

// mockTarget delivers events synchronously from the test goroutine.
type mockTarget struct {
	mu              sync.Mutex
	listeners       map[int]func(ev interface{})
	browserListener map[int]func(ev interface{})
	nextID          int
	actions         []chromedp.Action

	MockRunBackgroundActions func(ctx context.Context, actions ...chromedp.Action) error
}

func newMockTarget() *mockTarget {
	return &mockTarget{
		listeners:       make(map[int]func(ev interface{})),
		browserListener: make(map[int]func(ev interface{})),
	}
}

func (m *mockTarget) Listen(fn func(ev interface{})) func() {
	return m.add(m.listeners, fn)
}

func (m *mockTarget) ListenBrowser(fn func(ev interface{})) func() {
	return m.add(m.browserListener, fn)
}

func (m *mockTarget) add(set map[int]func(ev interface{}), fn func(ev interface{})) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	set[id] = fn
	return func() {
		m.mu.Lock()
		delete(set, id)
		m.mu.Unlock()
	}
}

func (m *mockTarget) RunBackgroundActions(ctx context.Context, actions ...chromedp.Action) error {
	m.mu.Lock()
	m.actions = append(m.actions, actions...)
	m.mu.Unlock()
	if m.MockRunBackgroundActions != nil {
		return m.MockRunBackgroundActions(ctx, actions...)
	}
	return nil
}

func (m *mockTarget) TargetID() string { return "T1" }

func (m *mockTarget) emit(ev interface{}) {
	m.mu.Lock()
	fns := make([]func(ev interface{}), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (m *mockTarget) emitBrowser(ev interface{}) {
	m.mu.Lock()
	fns := make([]func(ev interface{}), 0, len(m.browserListener))
	for _, fn := range m.browserListener {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (m *mockTarget) listenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners) + len(m.browserListener)
}

func (m *mockTarget) recordedActions() []chromedp.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]chromedp.Action, len(m.actions))
	copy(out, m.actions)
	return out
}

// targetOnly hides ListenBrowser.
type targetOnly struct{ m *mockTarget }

func (t targetOnly) Listen(fn func(ev interface{})) func() { return t.m.Listen(fn) }
func (t targetOnly) RunBackgroundActions(ctx context.Context, actions ...chromedp.Action) error {
	return t.m.RunBackgroundActions(ctx, actions...)
}
func (t targetOnly) TargetID() string { return t.m.TargetID() }
