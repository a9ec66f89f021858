// internal/browser/element/engine.go
package element

import (
	"context"
	"errors"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/madanlalit/heimdall/api/schemas"
	"github.com/madanlalit/heimdall/internal/config"
	"github.com/madanlalit/heimdall/internal/events"
)

// Pauses between the steps of an interaction. The page needs a moment after a
// scroll or a press before the next event is meaningful.
const (
	scrollSettle      = 50 * time.Millisecond
	moveToPressDelay  = 30 * time.Millisecond
	pressToRelease    = 50 * time.Millisecond
	afterScriptClick  = 50 * time.Millisecond
	afterClickFocus   = 100 * time.Millisecond
	betweenClearSteps = 20 * time.Millisecond
	afterClear        = 50 * time.Millisecond

	pressTimeout   = 1 * time.Second
	releaseTimeout = 2 * time.Second
)

// Engine performs clicks, typing and other element interactions on top of an
// Executor. Every operation takes a backend node id and builds a fresh handle.
type Engine struct {
	exec     Executor
	resolver *Resolver
	logger   *zap.Logger
	cfg      config.InteractionConfig
	bus      *events.Bus
	goos     string
}

// NewEngine creates an engine. The bus may be nil.
func NewEngine(exec Executor, logger *zap.Logger, cfg config.InteractionConfig, bus *events.Bus) *Engine {
	return &Engine{
		exec:     exec,
		resolver: NewResolver(exec, logger),
		logger:   logger.Named("engine"),
		cfg:      cfg,
		bus:      bus,
		goos:     runtime.GOOS,
	}
}

// Resolver returns the geometry resolver the engine uses.
func (e *Engine) Resolver() *Resolver { return e.resolver }

// Click clicks the element with real mouse events when the target is reachable,
// and falls back to a scripted click when pointer events are disabled, no
// geometry can be found, something else covers the click point, or the mouse
// dispatch fails. Only a failing scripted click is returned as an error.
func (e *Engine) Click(ctx context.Context, backendID int64, opts ClickOptions) error {
	h, err := handle(backendID)
	if err != nil {
		return err
	}
	if opts.Button == "" {
		opts.Button = schemas.ButtonLeft
	}
	if opts.ClickCount <= 0 {
		opts.ClickCount = 1
	}
	log := e.logger.With(zap.Int64("backend_id", backendID))

	if !e.resolver.CheckPointerEvents(ctx, h) {
		log.Debug("pointer-events is none, using scripted click.")
		return e.scriptedClick(ctx, h)
	}

	vw, vh := e.resolver.Viewport(ctx)
	quads, err := e.resolver.Locate(ctx, h)
	if err != nil {
		log.Debug("No geometry, using scripted click.", zap.Error(err))
		return e.scriptedClick(ctx, h)
	}

	e.scrollIntoView(ctx, h)
	if err := e.exec.Sleep(ctx, scrollSettle); err != nil {
		return err
	}

	// Layout may have moved with the scroll.
	if fresh, err := e.resolver.Locate(ctx, h); err == nil {
		quads = fresh
	}
	p := BestPoint(quads, vw, vh)

	if ok, interceptor := e.resolver.VerifyHit(ctx, h, p); !ok {
		log.Warn("Click target is covered, using scripted click.",
			zap.String("interceptor", interceptor),
			zap.Float64("x", p.X), zap.Float64("y", p.Y),
		)
		return e.scriptedClick(ctx, h)
	}

	if err := e.dispatchClick(ctx, p, opts); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("Mouse dispatch failed, using scripted click.", zap.Error(err))
		return e.scriptedClick(ctx, h)
	}

	e.bus.Emit(events.TypeElementClicked, events.ElementClicked{BackendNodeID: backendID, X: p.X, Y: p.Y})
	return nil
}

func (e *Engine) dispatchClick(ctx context.Context, p Point, opts ClickOptions) error {
	move := schemas.MouseEventData{
		Type:      schemas.MouseMove,
		X:         p.X,
		Y:         p.Y,
		Button:    schemas.ButtonNone,
		Modifiers: opts.Modifiers,
	}
	if err := e.exec.DispatchMouseEvent(ctx, move); err != nil {
		return err
	}
	if err := e.exec.Sleep(ctx, moveToPressDelay); err != nil {
		return err
	}

	press := schemas.MouseEventData{
		Type:       schemas.MousePress,
		X:          p.X,
		Y:          p.Y,
		Button:     opts.Button,
		Buttons:    buttonMask(opts.Button),
		ClickCount: opts.ClickCount,
		Modifiers:  opts.Modifiers,
	}
	if err := e.dispatchWithin(ctx, pressTimeout, press); err != nil {
		return err
	}
	if err := e.exec.Sleep(ctx, pressToRelease); err != nil {
		return err
	}

	release := press
	release.Type = schemas.MouseRelease
	release.Buttons = 0
	return e.dispatchWithin(ctx, releaseTimeout, release)
}

func (e *Engine) dispatchWithin(ctx context.Context, d time.Duration, data schemas.MouseEventData) error {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return e.exec.DispatchMouseEvent(tctx, data)
}

func (e *Engine) scriptedClick(ctx context.Context, h Handle) error {
	if err := e.resolver.callOn(ctx, h, scriptClick, nil); err != nil {
		return wrap("click", h.BackendID, "scripted click failed", err)
	}
	if err := e.exec.Sleep(ctx, afterScriptClick); err != nil {
		return err
	}
	e.bus.Emit(events.TypeElementClicked, events.ElementClicked{BackendNodeID: h.BackendID, Scripted: true})
	return nil
}

// ScrollIntoView scrolls the element into view, natively when possible.
func (e *Engine) ScrollIntoView(ctx context.Context, backendID int64) error {
	h, err := handle(backendID)
	if err != nil {
		return err
	}
	if err := e.exec.ScrollIntoViewIfNeeded(ctx, h.BackendID); err == nil {
		return nil
	}
	if err := e.resolver.callOn(ctx, h, scriptScrollIntoView, nil); err != nil {
		return wrap("scroll", h.BackendID, "scroll into view failed", err)
	}
	return nil
}

func (e *Engine) scrollIntoView(ctx context.Context, h Handle) {
	if err := e.ScrollIntoView(ctx, h.BackendID); err != nil {
		e.logger.Debug("Scroll into view failed.", zap.Int64("backend_id", h.BackendID), zap.Error(err))
	}
}

// Fill focuses the element, optionally clears it, and enters text.
func (e *Engine) Fill(ctx context.Context, backendID int64, text string, clear bool) error {
	h, err := handle(backendID)
	if err != nil {
		return err
	}

	e.scrollIntoView(ctx, h)
	if err := e.focusRobust(ctx, h); err != nil {
		return err
	}

	if clear {
		if err := e.clear(ctx, h); err != nil {
			return err
		}
	}

	if text != "" {
		if e.cfg.PerCharacterTyping {
			err = e.typeCharacters(ctx, text)
		} else {
			err = e.exec.InsertText(ctx, text)
		}
		if err != nil {
			return wrap("type", h.BackendID, "text entry failed", err)
		}
	}

	e.bus.Emit(events.TypeElementTyped, events.ElementTyped{BackendNodeID: backendID, Text: text, Cleared: clear})
	return nil
}

// focusRobust tries native focus, then script focus, then a click.
func (e *Engine) focusRobust(ctx context.Context, h Handle) error {
	if err := e.exec.Focus(ctx, h.BackendID, 0); err == nil {
		return nil
	}
	if err := e.resolver.callOn(ctx, h, scriptFocus, nil); err == nil {
		return nil
	}
	if err := e.Click(ctx, h.BackendID, DefaultClickOptions()); err != nil {
		return err
	}
	return e.exec.Sleep(ctx, afterClickFocus)
}

// clear empties the field: select-all and Backspace, then triple-click and
// Delete, then a script that resets the value. A failed clear is logged and
// typing proceeds.
func (e *Engine) clear(ctx context.Context, h Handle) error {
	log := e.logger.With(zap.Int64("backend_id", h.BackendID))

	err := e.clearWithKeyboard(ctx)
	if err != nil {
		log.Debug("Keyboard clear failed, trying triple-click.", zap.Error(err))
		err = e.clearWithTripleClick(ctx, h)
	}
	if err != nil {
		log.Debug("Triple-click clear failed, trying script clear.", zap.Error(err))
		var res clearResult
		if serr := e.resolver.callOn(ctx, h, scriptClear, &res); serr != nil {
			log.Warn("Could not clear element.", zap.Error(serr))
		} else if !res.Cleared || res.Remaining != "" {
			log.Warn("Script clear left content behind.", zap.String("method", res.Method), zap.String("remaining", res.Remaining))
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return e.exec.Sleep(ctx, afterClear)
}

func (e *Engine) clearWithKeyboard(ctx context.Context) error {
	selectAll := KeyInfo{Key: "a", Code: "KeyA", VK: 65, Modifiers: e.shortcutModifier()}
	if err := e.pressKeyInfo(ctx, selectAll, false); err != nil {
		return err
	}
	if err := e.exec.Sleep(ctx, betweenClearSteps); err != nil {
		return err
	}
	return e.pressKeyInfo(ctx, namedKeys["Backspace"], false)
}

func (e *Engine) clearWithTripleClick(ctx context.Context, h Handle) error {
	box, err := e.resolver.ContentBox(ctx, h)
	if err != nil {
		return err
	}
	opts := ClickOptions{Button: schemas.ButtonLeft, ClickCount: 3}
	if err := e.dispatchClick(ctx, box.Center(), opts); err != nil {
		return err
	}
	if err := e.exec.Sleep(ctx, betweenClearSteps); err != nil {
		return err
	}
	return e.pressKeyInfo(ctx, namedKeys["Delete"], false)
}

// shortcutModifier is Meta on macOS and Ctrl elsewhere.
func (e *Engine) shortcutModifier() schemas.KeyModifier {
	if e.goos == "darwin" {
		return schemas.ModMeta
	}
	return schemas.ModCtrl
}

func (e *Engine) typeCharacters(ctx context.Context, text string) error {
	for _, r := range text {
		if err := e.pressKeyInfo(ctx, CharKey(r), true); err != nil {
			return err
		}
		if e.cfg.TypingDelay > 0 {
			if err := e.exec.Sleep(ctx, e.cfg.TypingDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// pressKeyInfo sends keyDown, an optional char event carrying the text, and keyUp.
func (e *Engine) pressKeyInfo(ctx context.Context, k KeyInfo, withChar bool) error {
	down := schemas.KeyEventData{
		Type:                  schemas.KeyDown,
		Key:                   k.Key,
		Code:                  k.Code,
		WindowsVirtualKeyCode: k.VK,
		Modifiers:             k.Modifiers,
	}
	if err := e.exec.DispatchKeyEvent(ctx, down); err != nil {
		return err
	}

	if withChar && k.Text != "" {
		char := down
		char.Type = schemas.KeyChar
		char.Text = k.Text
		if err := e.exec.DispatchKeyEvent(ctx, char); err != nil {
			return err
		}
	}

	up := down
	up.Type = schemas.KeyUp
	return e.exec.DispatchKeyEvent(ctx, up)
}

// PressKey presses a key or combination on whatever has focus, e.g. "Enter",
// "Escape", "a" or "Control+a".
func (e *Engine) PressKey(ctx context.Context, key string) error {
	k, ok := ParseKey(key)
	if !ok {
		return newError(KindPermanent, "press_key", 0, "unknown key: "+key, nil)
	}
	if err := e.pressKeyInfo(ctx, k, true); err != nil {
		return wrap("press_key", 0, "key dispatch failed", err)
	}
	return nil
}

// Hover moves the mouse to the centre of the element's content box.
func (e *Engine) Hover(ctx context.Context, backendID int64) error {
	h, err := handle(backendID)
	if err != nil {
		return err
	}
	box, err := e.resolver.ContentBox(ctx, h)
	if err != nil {
		return err
	}
	c := box.Center()
	move := schemas.MouseEventData{Type: schemas.MouseMove, X: c.X, Y: c.Y, Button: schemas.ButtonNone}
	if err := e.exec.DispatchMouseEvent(ctx, move); err != nil {
		return wrap("hover", backendID, "mouse move failed", err)
	}
	return nil
}

// Focus focuses the element natively, falling back to script.
func (e *Engine) Focus(ctx context.Context, backendID int64) error {
	h, err := handle(backendID)
	if err != nil {
		return err
	}
	if info, err := e.exec.DescribeNode(ctx, backendID); err == nil && info != nil {
		h.NodeID = info.NodeID
	}

	nativeErr := e.exec.Focus(ctx, h.BackendID, h.NodeID)
	if nativeErr == nil {
		return nil
	}
	if err := e.resolver.callOn(ctx, h, scriptFocus, nil); err != nil {
		return newError(KindPermanent, "focus", backendID, "could not be focused", errors.Join(nativeErr, err))
	}
	return nil
}

// SelectOption selects the option of a <select> whose value or visible text
// equals value and returns the option text.
func (e *Engine) SelectOption(ctx context.Context, backendID int64, value string) (string, error) {
	h, err := handle(backendID)
	if err != nil {
		return "", err
	}
	var res selectResult
	if err := e.resolver.callOn(ctx, h, selectOptionScript(value), &res); err != nil {
		return "", wrap("select", backendID, "select failed", err)
	}
	if res.Error != "" {
		return "", newError(KindPermanent, "select", backendID, res.Error, nil)
	}
	return res.Text, nil
}

// GetAttribute returns the named attribute and whether it is present.
func (e *Engine) GetAttribute(ctx context.Context, backendID int64, name string) (string, bool, error) {
	if _, err := handle(backendID); err != nil {
		return "", false, err
	}
	info, err := e.exec.DescribeNode(ctx, backendID)
	if err != nil {
		return "", false, wrap("describe", backendID, "describe failed", err)
	}
	v, ok := info.Attributes[name]
	return v, ok, nil
}

func handle(backendID int64) (Handle, error) {
	if backendID <= 0 {
		return Handle{}, newError(KindInvalidReference, "handle", 0, "invalid backend node id", nil)
	}
	return Handle{BackendID: backendID}, nil
}

// wrap passes *Error values through and classifies everything else.
func wrap(op string, backendID int64, reason string, err error) error {
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	return classify(op, backendID, reason, err)
}

func buttonMask(b schemas.MouseButton) int64 {
	switch b {
	case schemas.ButtonLeft:
		return 1
	case schemas.ButtonRight:
		return 2
	case schemas.ButtonMiddle:
		return 4
	default:
		return 0
	}
}
