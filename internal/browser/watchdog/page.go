// internal/browser/watchdog/page.go
package watchdog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/madanlalit/heimdall/internal/events"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const dialogTimeout = 5 * time.Second

// Page reports page lifecycle, console output, JavaScript errors, dialogs,
// crashes and downloads. Dialogs are accepted so they never stall the page.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	bus    *events.Bus
	target Target

	mu        sync.Mutex
	stops     []func()
	jsErrors  []events.Error
	downloads map[string]events.Download

	wg sync.WaitGroup
}

// NewPage creates a page watchdog for target. It does nothing until Start.
func NewPage(ctx context.Context, target Target, logger *zap.Logger, bus *events.Bus) *Page {
	pctx, cancel := context.WithCancel(ctx)
	return &Page{
		ctx:       pctx,
		cancel:    cancel,
		logger:    logger.Named("page_watchdog"),
		bus:       bus,
		target:    target,
		downloads: make(map[string]events.Download),
	}
}

// Start subscribes to target events, and to browser events when the target
// can deliver them.
func (p *Page) Start() {
	stops := []func(){p.target.Listen(p.handle)}
	if bt, ok := p.target.(BrowserTarget); ok {
		stops = append(stops, bt.ListenBrowser(p.handleBrowser))
	}
	p.mu.Lock()
	p.stops = append(p.stops, stops...)
	p.mu.Unlock()
}

// Stop unsubscribes and waits for in-progress dialog handling to finish.
func (p *Page) Stop() {
	p.cancel()
	p.mu.Lock()
	stops := p.stops
	p.stops = nil
	p.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
	p.wg.Wait()
}

// JSErrors returns the uncaught exceptions and console errors seen so far.
func (p *Page) JSErrors() []events.Error {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Error, len(p.jsErrors))
	copy(out, p.jsErrors)
	return out
}

// ClearErrors forgets the recorded JavaScript errors.
func (p *Page) ClearErrors() {
	p.mu.Lock()
	p.jsErrors = nil
	p.mu.Unlock()
}

func (p *Page) stopped() bool {
	select {
	case <-p.ctx.Done():
		return true
	default:
		return false
	}
}

func (p *Page) handle(ev interface{}) {
	if p.stopped() {
		return
	}

	switch ev := ev.(type) {
	case *page.EventFrameNavigated:
		if ev.Frame == nil {
			return
		}
		p.bus.Emit(events.TypeFrameNavigated, events.FrameNavigated{
			FrameID:   string(ev.Frame.ID),
			URL:       ev.Frame.URL,
			MainFrame: ev.Frame.ParentID == "",
		})
	case *page.EventDomContentEventFired:
		p.bus.Emit(events.TypeDOMContentLoaded, events.PageLifecycle{Timestamp: seconds(ev.Timestamp)})
	case *page.EventLoadEventFired:
		p.bus.Emit(events.TypePageLoad, events.PageLifecycle{Timestamp: seconds(ev.Timestamp)})
	case *dom.EventDocumentUpdated:
		p.bus.Emit(events.TypeDOMChanged, events.DOMChanged{TargetID: p.target.TargetID()})
	case *runtime.EventConsoleAPICalled:
		p.onConsole(ev)
	case *runtime.EventExceptionThrown:
		p.onException(ev)
	case *page.EventJavascriptDialogOpening:
		p.onDialog(ev)
	case *inspector.EventTargetCrashed:
		p.logger.Error("Page target crashed.", zap.String("target_id", p.target.TargetID()))
		p.bus.Emit(events.TypeCrash, events.Crash{TargetID: p.target.TargetID()})
	}
}

func (p *Page) handleBrowser(ev interface{}) {
	if p.stopped() {
		return
	}

	switch ev := ev.(type) {
	case *browser.EventDownloadWillBegin:
		d := events.Download{GUID: ev.GUID, URL: ev.URL, Filename: ev.SuggestedFilename}
		p.mu.Lock()
		p.downloads[ev.GUID] = d
		p.mu.Unlock()
		p.logger.Info("Download started.", zap.String("url", ev.URL), zap.String("filename", ev.SuggestedFilename))
		p.bus.Emit(events.TypeDownloadStarted, d)
	case *browser.EventDownloadProgress:
		if ev.State == browser.DownloadProgressStateInProgress {
			return
		}
		p.mu.Lock()
		d, ok := p.downloads[ev.GUID]
		delete(p.downloads, ev.GUID)
		p.mu.Unlock()
		if !ok {
			d = events.Download{GUID: ev.GUID}
		}
		d.State = ev.State.String()
		if ev.FilePath != "" {
			d.Filename = ev.FilePath
		}
		p.logger.Info("Download finished.", zap.String("state", d.State), zap.String("filename", d.Filename))
		p.bus.Emit(events.TypeDownloadCompleted, d)
	}
}

func (p *Page) onConsole(ev *runtime.EventConsoleAPICalled) {
	msg := events.ConsoleMessage{Level: ev.Type.String(), Text: consoleText(ev.Args)}
	if ev.Type == runtime.APITypeError {
		p.logger.Warn("Console error.", zap.String("text", truncate(msg.Text, 100)))
		p.mu.Lock()
		p.jsErrors = append(p.jsErrors, events.Error{Source: "console", Message: msg.Text})
		p.mu.Unlock()
	}
	p.bus.Emit(events.TypeConsoleMessage, msg)
}

func (p *Page) onException(ev *runtime.EventExceptionThrown) {
	d := ev.ExceptionDetails
	if d == nil {
		return
	}
	text := d.Text
	if d.Exception != nil && d.Exception.Description != "" {
		text = d.Exception.Description
	}
	e := events.Error{Source: "javascript", Message: text, URL: d.URL, Line: d.LineNumber}

	p.mu.Lock()
	p.jsErrors = append(p.jsErrors, e)
	p.mu.Unlock()

	p.logger.Warn("JavaScript exception.", zap.String("message", text), zap.String("url", d.URL), zap.Int64("line", d.LineNumber))
	p.bus.Emit(events.TypeError, e)
}

// onDialog accepts the dialog from a separate goroutine; event handlers must
// not issue commands synchronously.
func (p *Page) onDialog(ev *page.EventJavascriptDialogOpening) {
	action := page.HandleJavaScriptDialog(true)
	if ev.Type == page.DialogTypePrompt {
		action = action.WithPromptText(ev.DefaultPrompt)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(p.ctx, dialogTimeout)
		defer cancel()

		err := p.target.RunBackgroundActions(ctx, action)
		if err != nil {
			p.logger.Warn("Could not dismiss dialog.", zap.String("type", ev.Type.String()), zap.Error(err))
		} else {
			p.logger.Debug("Dialog accepted.", zap.String("type", ev.Type.String()), zap.String("message", ev.Message))
		}
		p.bus.Emit(events.TypeDialog, events.Dialog{
			DialogType: ev.Type.String(),
			Message:    ev.Message,
			Accepted:   err == nil,
		})
	}()
}

func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		switch {
		case len(a.Value) > 0:
			var s string
			if err := json.Unmarshal(a.Value, &s); err == nil {
				parts = append(parts, s)
			} else {
				parts = append(parts, string(a.Value))
			}
		case a.Description != "":
			parts = append(parts, a.Description)
		case a.Type == runtime.TypeUndefined:
			parts = append(parts, "undefined")
		}
	}
	return strings.Join(parts, " ")
}

func seconds(ts *cdp.MonotonicTime) float64 {
	if ts == nil {
		return 0
	}
	return float64(ts.Time().UnixNano()) / float64(time.Second)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
