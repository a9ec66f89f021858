// internal/tools/actions.go
package tools

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/madanlalit/heimdall/api/schemas"
	"github.com/madanlalit/heimdall/internal/browser/dom"
	"github.com/madanlalit/heimdall/internal/browser/element"
)

const (
	defaultScrollAmount = 500
	typedPreviewLen     = 20
	searchURL           = "https://www.google.com/search?q="
)

// Browser is the page level surface actions drive.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error
	Reload(ctx context.Context) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	ExecuteScript(ctx context.Context, expression string, res interface{}) error
	Tabs(ctx context.Context) ([]schemas.TabInfo, error)
	NewTab(ctx context.Context, url string) (schemas.TabInfo, error)
	SwitchTab(ctx context.Context, id string) error
	CloseTab(ctx context.Context, id string) error
}

// Elements performs input on elements addressed by backend node id.
type Elements interface {
	Click(ctx context.Context, backendID int64, opts element.ClickOptions) error
	Fill(ctx context.Context, backendID int64, text string, clear bool) error
	Hover(ctx context.Context, backendID int64) error
	Focus(ctx context.Context, backendID int64) error
	ScrollIntoView(ctx context.Context, backendID int64) error
	SelectOption(ctx context.Context, backendID int64, value string) (string, error)
	PressKey(ctx context.Context, key string) error
}

var indexParam = Param{Name: "index", Type: TypeInteger, Description: "Element index from the page element list", Required: true}

// DefaultActions returns the built-in browser actions.
func DefaultActions() []Action {
	return []Action{
		{
			Name:        "click",
			Description: "Click element by index from the DOM list",
			Params:      ParamSchema{indexParam},
			Handler:     click,
		},
		{
			Name:        "type_text",
			Description: "Type text into element by index",
			Params: ParamSchema{
				indexParam,
				{Name: "text", Type: TypeString, Description: "Text to type", Required: true},
				{Name: "clear", Type: TypeBoolean, Description: "Clear existing content first", Default: true},
			},
			Handler: typeText,
		},
		{
			Name:        "navigate",
			Description: "Navigate to a URL",
			Params:      ParamSchema{{Name: "url", Type: TypeString, Description: "Absolute URL to open", Required: true}},
			Handler:     navigate,
		},
		{
			Name:        "search",
			Description: "Search the web using Google",
			Params:      ParamSchema{{Name: "query", Type: TypeString, Description: "Search query", Required: true}},
			Handler:     search,
		},
		{
			Name:        "go_back",
			Description: "Go back to previous page",
			Handler:     goBack,
		},
		{
			Name:        "go_forward",
			Description: "Go forward in browser history",
			Handler:     goForward,
		},
		{
			Name:        "refresh_page",
			Description: "Refresh/reload the current page",
			Handler:     refreshPage,
		},
		{
			Name:        "scroll",
			Description: "Scroll the page",
			Params: ParamSchema{
				{Name: "direction", Type: TypeString, Description: "One of up, down, left, right", Required: true},
				{Name: "amount", Type: TypeInteger, Description: "Scroll amount in pixels", Default: defaultScrollAmount},
			},
			Handler: scroll,
		},
		{
			Name:        "scroll_to_element",
			Description: "Scroll an element by index into view",
			Params:      ParamSchema{indexParam},
			Handler:     scrollToElement,
		},
		{
			Name:        "wait",
			Description: "Wait for a specified time",
			Params:      ParamSchema{{Name: "seconds", Type: TypeNumber, Description: "Seconds to wait", Default: 1.0}},
			Handler:     wait,
		},
		{
			Name:        "screenshot",
			Description: "Take a screenshot",
			Params:      ParamSchema{{Name: "full_page", Type: TypeBoolean, Description: "Capture the whole page", Default: false}},
			Handler:     screenshot,
		},
		{
			Name:        "get_url",
			Description: "Get current page URL",
			Handler:     getURL,
		},
		{
			Name:        "get_title",
			Description: "Get current page title",
			Handler:     getTitle,
		},
		{
			Name:        "execute_js",
			Description: "Execute JavaScript code",
			Params:      ParamSchema{{Name: "code", Type: TypeString, Description: "JavaScript expression to evaluate", Required: true}},
			Handler:     executeJS,
		},
		{
			Name:        "extract_content",
			Description: "Extract the readable page content as markdown",
			Params:      ParamSchema{{Name: "max_length", Type: TypeInteger, Description: "Maximum characters to return", Default: defaultContentLength}},
			Handler:     extractContent,
		},
		{
			Name:        "hover",
			Description: "Hover over element by index",
			Params:      ParamSchema{indexParam},
			Handler:     hover,
		},
		{
			Name:        "focus",
			Description: "Focus on an element (useful before typing)",
			Params:      ParamSchema{indexParam},
			Handler:     focus,
		},
		{
			Name:        "select_option",
			Description: "Select an option from a dropdown by value or text",
			Params: ParamSchema{
				indexParam,
				{Name: "value", Type: TypeString, Description: "Option value or visible text", Required: true},
			},
			Handler: selectOption,
		},
		{
			Name:        "press_key",
			Description: "Press a keyboard key (e.g. Enter, Tab, Escape, Control+a)",
			Params:      ParamSchema{{Name: "key", Type: TypeString, Description: "Key or key combination", Required: true}},
			Handler:     pressKey,
		},
		{
			Name:        "ask_human",
			Description: "Ask human for guidance when stuck or need help",
			Params:      ParamSchema{{Name: "question", Type: TypeString, Description: "What help you need", Required: true}},
			Handler:     askHuman,
		},
		{
			Name:        "list_tabs",
			Description: "List open browser tabs",
			Handler:     listTabs,
		},
		{
			Name:        "new_tab",
			Description: "Open a new tab and switch to it",
			Params:      ParamSchema{{Name: "url", Type: TypeString, Description: "URL to open, blank when omitted"}},
			Handler:     newTab,
		},
		{
			Name:        "switch_tab",
			Description: "Switch to an open tab",
			Params:      ParamSchema{{Name: "tab_id", Type: TypeString, Description: "Tab id from list_tabs", Required: true}},
			Handler:     switchTab,
		},
		{
			Name:        "close_tab",
			Description: "Close an open tab",
			Params:      ParamSchema{{Name: "tab_id", Type: TypeString, Description: "Tab id from list_tabs", Required: true}},
			Handler:     closeTab,
		},
		{
			Name:        "done",
			Description: "Mark task as complete",
			Params: ParamSchema{
				{Name: "message", Type: TypeString, Description: "Summary of the outcome", Default: "Task completed"},
				{Name: "success", Type: TypeBoolean, Description: "Whether the task succeeded", Default: true},
			},
			Handler: done,
		},
	}
}

// RegisterDefaultActions registers DefaultActions on r.
func RegisterDefaultActions(r *Registry) error {
	for _, a := range DefaultActions() {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}

// -- Element actions --

func elementAt(env *Env, index int) (dom.SelectorEntry, bool) {
	if env.DOM == nil {
		return dom.SelectorEntry{}, false
	}
	entry, ok := env.DOM.SelectorMap[index]
	return entry, ok
}

func describeEntry(index int, e dom.SelectorEntry) string {
	tag := strings.ToLower(e.Tag)
	if tag == "" {
		tag = "unknown"
	}
	return fmt.Sprintf("element %d (%s)", index, tag)
}

func entryData(e dom.SelectorEntry) map[string]interface{} {
	return map[string]interface{}{
		"backend_node_id": e.BackendID,
		"tag":             strings.ToLower(e.Tag),
		"attributes":      e.Attributes,
		"selectors":       e.Selectors,
	}
}

func click(ctx context.Context, env *Env, p Params) (ActionResult, error) {
	index := p.Int("index")
	entry, ok := elementAt(env, index)
	if !ok {
		return Failf("Invalid element index: %d", index), nil
	}
	err := Retry(ctx, env.Logger, env.Retry, describeEntry(index, entry), func(ctx context.Context) error {
		if err := env.Elements.Click(ctx, entry.BackendID, element.DefaultClickOptions()); err != nil {
			return fmt.Errorf("Click failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return Fail(err.Error()), nil
	}
	return Ok(fmt.Sprintf("Clicked element %d", index), map[string]interface{}{"element": entryData(entry)}), nil
}

func typeText(ctx context.Context, env *Env, p Params) (ActionResult, error) {
	index := p.Int("index")
	text := p.String("text")
	entry, ok := elementAt(env, index)
	if !ok {
		return Failf("Invalid element index: %d", index), nil
	}
	err := Retry(ctx, env.Logger, env.Retry, describeEntry(index, entry), func(ctx context.Context) error {
		if err := env.Elements.Fill(ctx, entry.BackendID, text, p.Bool("clear")); err != nil {
			return fmt.Errorf("Type failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return Fail(err.Error()), nil
	}
	return Ok(fmt.Sprintf("Typed '%s' into element %d", preview(text, typedPreviewLen), index), map[string]interface{}{
		"element": entryData(entry),
		"text":    text,
	}), nil
}

func hover(ctx context.Context, env *Env, p Params) (ActionResult, error) {
	index := p.Int("index")
	entry, ok := elementAt(env, index)
	if !ok {
		return Failf("Invalid element index: %d", index), nil
	}
	err := Retry(ctx, env.Logger, env.Retry, describeEntry(index, entry), func(ctx context.Context) error {
		if err := env.Elements.ScrollIntoView(ctx, entry.BackendID); err != nil {
			return fmt.Errorf("Hover failed: %w", err)
		}
		if err := env.Elements.Hover(ctx, entry.BackendID); err != nil {
			return fmt.Errorf("Hover failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return Fail(err.Error()), nil
	}
	return Ok(fmt.Sprintf("Hovered element %d", index), nil), nil
}

func focus(ctx context.Context, env *Env, p Params) (ActionResult, error) {
	index := p.Int("index")
	entry, ok := elementAt(env, index)
	if !ok {
		return Failf("Invalid element index: %d", index), nil
	}
	if err := env.Elements.ScrollIntoView(ctx, entry.BackendID); err != nil {
		return Failf("Focus failed: %v", err), nil
	}
	if err := env.Elements.Focus(ctx, entry.BackendID); err != nil {
		return Failf("Focus failed: %v", err), nil
	}
	return Ok(fmt.Sprintf("Focused element %d", index), nil), nil
}

func selectOption(ctx context.Context, env *Env, p Params) (ActionResult, error) {
	index := p.Int("index")
	entry, ok := elementAt(env, index)
	if !ok {
		return Failf("Invalid element index: %d", index), nil
	}
	if err := env.Elements.ScrollIntoView(ctx, entry.BackendID); err != nil {
		return Failf("Select option failed: %v", err), nil
	}
	text, err := env.Elements.SelectOption(ctx, entry.BackendID, p.String("value"))
	if err != nil {
		return Failf("Select option failed: %v", err), nil
	}
	return Ok(fmt.Sprintf("Selected '%s' from dropdown %d", text, index), map[string]interface{}{"selected": text}), nil
}

func scrollToElement(ctx context.Context, env *Env, p Params) (ActionResult, error) {
	index := p.Int("index")
	entry, ok := elementAt(env, index)
	if !ok {
		return Failf("Invalid element index: %d", index), nil
	}
	if err := env.Elements.ScrollIntoView(ctx, entry.BackendID); err != nil {
		return Failf("Scroll failed: %v", err), nil
	}
	return Ok(fmt.Sprintf("Scrolled element %d into view", index), nil), nil
}

func pressKey(ctx context.Context, env *Env, p Params) (ActionResult, error) {
	key := p.String("key")
	if err := env.Elements.PressKey(ctx, key); err != nil {
		return Failf("Key press failed: %v", err), nil
	}
	return Ok("Pressed "+key, nil), nil
}

// -- Page actions --

func navigate(ctx context.Context, env *Env, p Params) (ActionResult, error) {
	target := p.String("url")
	if !IsURLAllowed(target, env.AllowedDomains) {
		return Failf("Navigation blocked: %s is not in allowed domains [%s]", target, strings.Join(env.AllowedDomains, ", ")), nil
	}
	if err := env.Browser.Navigate(ctx, target); err != nil {
		return Failf("Navigation failed: %v", err), nil
	}
	current, err := env.Browser.URL(ctx)
	if err != nil {
		current = target
	}
	return Ok("Navigated to "+target, map[string]interface{}{"url": current}), nil
}

func search(ctx context.Context, env *Env, p Params) (ActionResult, error) {
	query := p.String("query")
	u := searchURL + url.QueryEscape(query)
	if err := env.Browser.Navigate(ctx, u); err != nil {
		return Failf("Search failed: %v", err), nil
	}
	return Ok("Searched for: "+query, map[string]interface{}{"query": query, "url": u}), nil
}

func goBack(ctx context.Context, env *Env, _ Params) (ActionResult, error) {
	if err := env.Browser.GoBack(ctx); err != nil {
		return Failf("Go back failed: %v", err), nil
	}
	return Ok("Went back", nil), nil
}

func goForward(ctx context.Context, env *Env, _ Params) (ActionResult, error) {
	if err := env.Browser.GoForward(ctx); err != nil {
		return Failf("Go forward failed: %v", err), nil
	}
	return Ok("Went forward", nil), nil
}

func refreshPage(ctx context.Context, env *Env, _ Params) (ActionResult, error) {
	if err := env.Browser.Reload(ctx); err != nil {
		return Failf("Refresh failed: %v", err), nil
	}
	return Ok("Page refreshed", nil), nil
}

var scrollDeltas = map[string][2]int{
	"up":    {0, -1},
	"down":  {0, 1},
	"left":  {-1, 0},
	"right": {1, 0},
}

func scroll(ctx context.Context, env *Env, p Params) (ActionResult, error) {
	direction := p.String("direction")
	amount := p.Int("amount")
	d, ok := scrollDeltas[direction]
	if !ok {
		return Failf("Invalid direction: %s", direction), nil
	}
	script := fmt.Sprintf("window.scrollBy(%d, %d)", d[0]*amount, d[1]*amount)
	if err := env.Browser.ExecuteScript(ctx, script, nil); err != nil {
		return Failf("Scroll failed: %v", err), nil
	}
	return Ok(fmt.Sprintf("Scrolled %s by %dpx", direction, amount), nil), nil
}

func wait(ctx context.Context, _ *Env, p Params) (ActionResult, error) {
	seconds := p.Float("seconds")
	if seconds < 0 {
		seconds = 0
	}
	t := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return Failf("Wait interrupted: %v", ctx.Err()), nil
	case <-t.C:
	}
	return Ok(fmt.Sprintf("Waited %ss", strconv.FormatFloat(seconds, 'f', -1, 64)), nil), nil
}

func screenshot(ctx context.Context, env *Env, p Params) (ActionResult, error) {
	data, err := env.Browser.Screenshot(ctx, p.Bool("full_page"))
	if err != nil {
		return Failf("Screenshot failed: %v", err), nil
	}
	return Ok("Screenshot captured", map[string]interface{}{"size": len(data)}), nil
}

func getURL(ctx context.Context, env *Env, _ Params) (ActionResult, error) {
	u, err := env.Browser.URL(ctx)
	if err != nil {
		return Failf("Get URL failed: %v", err), nil
	}
	return Ok(u, map[string]interface{}{"url": u}), nil
}

func getTitle(ctx context.Context, env *Env, _ Params) (ActionResult, error) {
	title, err := env.Browser.Title(ctx)
	if err != nil {
		return Failf("Get title failed: %v", err), nil
	}
	return Ok(title, map[string]interface{}{"title": title}), nil
}

func executeJS(ctx context.Context, env *Env, p Params) (ActionResult, error) {
	var res interface{}
	if err := env.Browser.ExecuteScript(ctx, p.String("code"), &res); err != nil {
		return Failf("JS execution failed: %v", err), nil
	}
	msg := ""
	if res != nil {
		msg = fmt.Sprint(res)
	}
	return Ok(msg, map[string]interface{}{"result": res}), nil
}

// -- Tabs --

func listTabs(ctx context.Context, env *Env, _ Params) (ActionResult, error) {
	tabs, err := env.Browser.Tabs(ctx)
	if err != nil {
		return Failf("List tabs failed: %v", err), nil
	}
	lines := make([]string, 0, len(tabs))
	for _, t := range tabs {
		mark := " "
		if t.Active {
			mark = "*"
		}
		lines = append(lines, fmt.Sprintf("%s %s %q %s", mark, t.TargetID, t.Title, t.URL))
	}
	return Ok(strings.Join(lines, "\n"), map[string]interface{}{"tabs": tabs}), nil
}

func newTab(ctx context.Context, env *Env, p Params) (ActionResult, error) {
	u := p.String("url")
	if u != "" && !IsURLAllowed(u, env.AllowedDomains) {
		return Failf("Navigation blocked: %s is not in allowed domains [%s]", u, strings.Join(env.AllowedDomains, ", ")), nil
	}
	tab, err := env.Browser.NewTab(ctx, u)
	if err != nil {
		return Failf("New tab failed: %v", err), nil
	}
	return Ok("Opened new tab "+tab.TargetID, map[string]interface{}{"tab_id": tab.TargetID, "url": tab.URL}), nil
}

func switchTab(ctx context.Context, env *Env, p Params) (ActionResult, error) {
	id := p.String("tab_id")
	if err := env.Browser.SwitchTab(ctx, id); err != nil {
		return Failf("Switch tab failed: %v", err), nil
	}
	return Ok("Switched to tab "+id, map[string]interface{}{"tab_id": id}), nil
}

func closeTab(ctx context.Context, env *Env, p Params) (ActionResult, error) {
	id := p.String("tab_id")
	if err := env.Browser.CloseTab(ctx, id); err != nil {
		return Failf("Close tab failed: %v", err), nil
	}
	return Ok("Closed tab "+id, map[string]interface{}{"tab_id": id}), nil
}

// -- Control --

func askHuman(ctx context.Context, env *Env, p Params) (ActionResult, error) {
	if env.Prompter == nil {
		return Fail("No human is available to answer"), nil
	}
	answer, err := env.Prompter.Ask(ctx, p.String("question"))
	if errors.Is(err, ErrHumanCancelled) {
		return Fail("Human input cancelled"), nil
	}
	if err != nil {
		return ActionResult{}, err
	}
	if strings.TrimSpace(answer) == "" {
		return Fail("No guidance provided"), nil
	}
	return Ok("Human guidance received: "+answer, map[string]interface{}{
		"human_response": answer,
		"guidance":       answer,
	}), nil
}

func done(_ context.Context, _ *Env, p Params) (ActionResult, error) {
	return Ok(p.String("message"), map[string]interface{}{
		"done":    true,
		"success": p.Bool("success"),
	}), nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
