// internal/tools/mocks_test.go
package tools

import (
	"context"
	"sync"

	"github.com/madanlalit/heimdall/api/schemas"
	"github.com/madanlalit/heimdall/internal/browser/element"
)

// mockBrowser records calls; unset Mock* functions succeed.
type mockBrowser struct {
	mu    sync.Mutex
	calls []string

	MockNavigate      func(ctx context.Context, url string) error
	MockURL           func(ctx context.Context) (string, error)
	MockTitle         func(ctx context.Context) (string, error)
	MockGoBack        func(ctx context.Context) error
	MockGoForward     func(ctx context.Context) error
	MockReload        func(ctx context.Context) error
	MockScreenshot    func(ctx context.Context, fullPage bool) ([]byte, error)
	MockExecuteScript func(ctx context.Context, expression string, res interface{}) error
	MockTabs          func(ctx context.Context) ([]schemas.TabInfo, error)
	MockNewTab        func(ctx context.Context, url string) (schemas.TabInfo, error)
	MockSwitchTab     func(ctx context.Context, id string) error
	MockCloseTab      func(ctx context.Context, id string) error
}

func (m *mockBrowser) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockBrowser) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockBrowser) Navigate(ctx context.Context, url string) error {
	m.record("navigate " + url)
	if m.MockNavigate != nil {
		return m.MockNavigate(ctx, url)
	}
	return nil
}

func (m *mockBrowser) URL(ctx context.Context) (string, error) {
	m.record("url")
	if m.MockURL != nil {
		return m.MockURL(ctx)
	}
	return "https://example.com/", nil
}

func (m *mockBrowser) Title(ctx context.Context) (string, error) {
	m.record("title")
	if m.MockTitle != nil {
		return m.MockTitle(ctx)
	}
	return "Example Domain", nil
}

func (m *mockBrowser) GoBack(ctx context.Context) error {
	m.record("back")
	if m.MockGoBack != nil {
		return m.MockGoBack(ctx)
	}
	return nil
}

func (m *mockBrowser) GoForward(ctx context.Context) error {
	m.record("forward")
	if m.MockGoForward != nil {
		return m.MockGoForward(ctx)
	}
	return nil
}

func (m *mockBrowser) Reload(ctx context.Context) error {
	m.record("reload")
	if m.MockReload != nil {
		return m.MockReload(ctx)
	}
	return nil
}

func (m *mockBrowser) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	m.record("screenshot")
	if m.MockScreenshot != nil {
		return m.MockScreenshot(ctx, fullPage)
	}
	return []byte("png"), nil
}

func (m *mockBrowser) ExecuteScript(ctx context.Context, expression string, res interface{}) error {
	m.record("script " + expression)
	if m.MockExecuteScript != nil {
		return m.MockExecuteScript(ctx, expression, res)
	}
	return nil
}

func (m *mockBrowser) Tabs(ctx context.Context) ([]schemas.TabInfo, error) {
	m.record("tabs")
	if m.MockTabs != nil {
		return m.MockTabs(ctx)
	}
	return nil, nil
}

func (m *mockBrowser) NewTab(ctx context.Context, url string) (schemas.TabInfo, error) {
	m.record("new_tab " + url)
	if m.MockNewTab != nil {
		return m.MockNewTab(ctx, url)
	}
	return schemas.TabInfo{TargetID: "T2", URL: url, Active: true}, nil
}

func (m *mockBrowser) SwitchTab(ctx context.Context, id string) error {
	m.record("switch_tab " + id)
	if m.MockSwitchTab != nil {
		return m.MockSwitchTab(ctx, id)
	}
	return nil
}

func (m *mockBrowser) CloseTab(ctx context.Context, id string) error {
	m.record("close_tab " + id)
	if m.MockCloseTab != nil {
		return m.MockCloseTab(ctx, id)
	}
	return nil
}

// mockElements records the backend ids it was asked to act on.
type mockElements struct {
	mu    sync.Mutex
	calls []string

	MockClick          func(ctx context.Context, backendID int64, opts element.ClickOptions) error
	MockFill           func(ctx context.Context, backendID int64, text string, clear bool) error
	MockHover          func(ctx context.Context, backendID int64) error
	MockFocus          func(ctx context.Context, backendID int64) error
	MockScrollIntoView func(ctx context.Context, backendID int64) error
	MockSelectOption   func(ctx context.Context, backendID int64, value string) (string, error)
	MockPressKey       func(ctx context.Context, key string) error
}

func (m *mockElements) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockElements) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockElements) Click(ctx context.Context, backendID int64, opts element.ClickOptions) error {
	m.record("click")
	if m.MockClick != nil {
		return m.MockClick(ctx, backendID, opts)
	}
	return nil
}

func (m *mockElements) Fill(ctx context.Context, backendID int64, text string, clear bool) error {
	m.record("fill")
	if m.MockFill != nil {
		return m.MockFill(ctx, backendID, text, clear)
	}
	return nil
}

func (m *mockElements) Hover(ctx context.Context, backendID int64) error {
	m.record("hover")
	if m.MockHover != nil {
		return m.MockHover(ctx, backendID)
	}
	return nil
}

func (m *mockElements) Focus(ctx context.Context, backendID int64) error {
	m.record("focus")
	if m.MockFocus != nil {
		return m.MockFocus(ctx, backendID)
	}
	return nil
}

func (m *mockElements) ScrollIntoView(ctx context.Context, backendID int64) error {
	m.record("scroll")
	if m.MockScrollIntoView != nil {
		return m.MockScrollIntoView(ctx, backendID)
	}
	return nil
}

func (m *mockElements) SelectOption(ctx context.Context, backendID int64, value string) (string, error) {
	m.record("select")
	if m.MockSelectOption != nil {
		return m.MockSelectOption(ctx, backendID, value)
	}
	return value, nil
}

func (m *mockElements) PressKey(ctx context.Context, key string) error {
	m.record("key " + key)
	if m.MockPressKey != nil {
		return m.MockPressKey(ctx, key)
	}
	return nil
}

// mockPrompter answers every question with the same reply.
type mockPrompter struct {
	MockAsk func(ctx context.Context, question string) (string, error)
}

func (m *mockPrompter) Ask(ctx context.Context, question string) (string, error) {
	return m.MockAsk(ctx, question)
}
