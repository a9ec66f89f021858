// internal/browser/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/domsnapshot"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/madanlalit/heimdall/api/schemas"
	"github.com/madanlalit/heimdall/internal/config"
	"github.com/madanlalit/heimdall/internal/events"
)

var (
	// ErrSessionClosed is returned by every operation after Close.
	ErrSessionClosed = errors.New("browser session is closed")
	// ErrHistoryBoundary is returned by GoBack/GoForward at the end of the history.
	ErrHistoryBoundary = errors.New("no history entry in that direction")
)

const readyStatePoll = 100 * time.Millisecond

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

type listener struct {
	fn      func(ev interface{})
	stopped atomic.Bool

	mu   sync.Mutex
	tabs map[context.Context]bool
}

// Session owns one browser and tracks the active tab. All protocol traffic for
// the active tab goes through RunActions.
type Session struct {
	id     string
	cfg    *config.Config
	logger *zap.Logger
	bus    *events.Bus

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu        sync.RWMutex
	ctx       context.Context
	targetID  target.ID
	tabs      map[target.ID]*tab
	listeners map[uint64]*listener
	nextID    uint64
	isClosed  bool
	// started is set once the first Run allocated the browser.
	started bool

	onClose func()
}

// Ensure Session implements the interface.
var _ ActionExecutor = (*Session)(nil)

// NewSession prepares the allocator and browser context. It connects to an
// existing browser when browser.cdp_url is set and launches one otherwise. No
// browser traffic happens until Start.
func NewSession(ctx context.Context, cfg *config.Config, logger *zap.Logger, bus *events.Bus) *Session {
	sessionID := uuid.New().String()
	sessionLogger := logger.Named("session").With(zap.String("session_id", sessionID))

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.Browser.CDPURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.Browser.CDPURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg.Browser)...)
	}

	sugar := sessionLogger.Named("chromedp").Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	return &Session{
		id:            sessionID,
		cfg:           cfg,
		logger:        sessionLogger,
		bus:           bus,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		ctx:           browserCtx,
		tabs:          make(map[target.ID]*tab),
		listeners:     make(map[uint64]*listener),
	}
}

// Start launches or attaches to the browser and prepares the first tab.
func (s *Session) Start(ctx context.Context) error {
	// The first Run allocates the browser and attaches a page target.
	if err := chromedp.Run(s.browserCtx); err != nil {
		return fmt.Errorf("failed to initialize browser context/target connection: %w", err)
	}

	c := chromedp.FromContext(s.browserCtx)
	if c == nil || c.Target == nil {
		return errors.New("browser started without a page target")
	}

	s.mu.Lock()
	s.targetID = c.Target.TargetID
	s.started = true
	s.mu.Unlock()

	if err := s.RunActions(ctx, s.setupTasks()); err != nil {
		return fmt.Errorf("failed to run session initialization tasks: %w", err)
	}
	if err := s.enableDownloads(ctx); err != nil {
		return err
	}

	s.logger.Info("Browser session started.", zap.String("target_id", string(c.Target.TargetID)))
	s.bus.Emit(events.TypeBrowserStarted, events.BrowserStarted{
		CDPURL:   s.cfg.Browser.CDPURL,
		TargetID: string(c.Target.TargetID),
	})
	return nil
}

// enableDownloads lets the browser save files into browser.download_dir and
// report progress as browser events.
func (s *Session) enableDownloads(ctx context.Context) error {
	dir := s.cfg.Browser.DownloadDir
	if dir == "" {
		return nil
	}
	bctx, err := s.browserExecutor(ctx)
	if err != nil {
		return err
	}
	err = browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
		WithDownloadPath(dir).
		WithEventsEnabled(true).
		Do(bctx)
	if err != nil {
		return fmt.Errorf("failed to set download directory %s: %w", dir, err)
	}
	return nil
}

// setupTasks enables the protocol domains the agent reads from and applies
// the configured headers and viewport.
func (s *Session) setupTasks() chromedp.Tasks {
	tasks := chromedp.Tasks{
		page.Enable(),
		dom.Enable(),
		network.Enable(),
		runtime.Enable(),
		accessibility.Enable(),
		domsnapshot.Enable(),
	}

	if len(s.cfg.Network.Headers) > 0 {
		headers := make(network.Headers)
		for k, v := range s.cfg.Network.Headers {
			headers[k] = v
		}
		tasks = append(tasks, network.SetExtraHTTPHeaders(headers))
	}

	// A launched browser already got its window size from the allocator.
	if vp := s.cfg.Browser.Viewport; s.cfg.Browser.CDPURL != "" && vp.Width > 0 && vp.Height > 0 {
		tasks = append(tasks, chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height)))
	}
	return tasks
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// TargetID returns the active tab's target id.
func (s *Session) TargetID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return string(s.targetID)
}

// Context returns the active tab's chromedp context.
func (s *Session) Context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// SetOnClose registers a callback run once when the session closes.
func (s *Session) SetOnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

// RunActions executes chromedp actions against the active tab, bounded by both
// the session lifetime and ctx. Errors are returned as-is; callers decide
// whether to retry.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.RLock()
	tabCtx, closed := s.ctx, s.isClosed
	s.mu.RUnlock()
	if closed {
		return ErrSessionClosed
	}

	runCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// RunBackgroundActions runs actions detached from ctx's cancellation but still
// bounded by the session lifetime.
func (s *Session) RunBackgroundActions(ctx context.Context, actions ...chromedp.Action) error {
	return s.RunActions(Detach(ctx), actions...)
}

// Listen delivers events from the active tab to fn until the returned stop
// function is called. Listeners follow tab switches. fn runs on chromedp's
// event goroutine and must not block or issue protocol commands inline.
func (s *Session) Listen(fn func(ev interface{})) func() {
	l := &listener{fn: fn, tabs: make(map[context.Context]bool)}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = l
	tabCtx := s.ctx
	s.mu.Unlock()

	s.attach(tabCtx, l)

	return func() {
		l.stopped.Store(true)
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// attach subscribes l to the tab once. Events are dropped while the tab is not
// active and after the listener stopped.
func (s *Session) attach(tabCtx context.Context, l *listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tabs[tabCtx] {
		return
	}
	l.tabs[tabCtx] = true

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if l.stopped.Load() {
			return
		}
		s.mu.RLock()
		active := s.ctx == tabCtx
		s.mu.RUnlock()
		if active {
			l.fn(ev)
		}
	})
}

// ListenBrowser delivers browser-level events, such as downloads, to fn until
// the returned stop function is called.
func (s *Session) ListenBrowser(fn func(ev interface{})) func() {
	lctx, cancel := context.WithCancel(s.browserCtx)
	chromedp.ListenBrowser(lctx, fn)
	return cancel
}

// Navigate loads url in the active tab and waits for document.readyState to be
// complete. Running past the navigation timeout is logged, not returned.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.Network.NavigationTimeout)
	defer cancel()

	s.bus.Emit(events.TypeNavigationStarted, events.Navigation{URL: url})

	if err := s.RunActions(navCtx, chromedp.Navigate(url)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			s.bus.Emit(events.TypeNavigationCompleted, events.Navigation{URL: url, Error: err.Error()})
			return fmt.Errorf("navigation to %s failed: %w", url, err)
		}
		s.logger.Warn("Navigation timed out, continuing with the partially loaded page.",
			zap.String("url", url), zap.Duration("timeout", s.cfg.Network.NavigationTimeout))
	}

	if err := s.waitReadyState(navCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("Page did not reach readyState complete.", zap.String("url", url), zap.Error(err))
	}

	s.bus.Emit(events.TypeNavigationCompleted, events.Navigation{URL: url})
	return nil
}

// waitReadyState polls document.readyState until it is complete.
func (s *Session) waitReadyState(ctx context.Context) error {
	for {
		var state string
		if err := s.RunActions(ctx, chromedp.Evaluate(`document.readyState`, &state)); err == nil && state == "complete" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyStatePoll):
		}
	}
}

// URL returns the active tab's location.
func (s *Session) URL(ctx context.Context) (string, error) {
	var u string
	if err := s.RunActions(ctx, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("could not read page URL: %w", err)
	}
	return u, nil
}

// Title returns the active tab's document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var t string
	if err := s.RunActions(ctx, chromedp.Title(&t)); err != nil {
		return "", fmt.Errorf("could not read page title: %w", err)
	}
	return t, nil
}

// Screenshot captures the viewport as PNG, or the whole page when fullPage is set.
func (s *Session) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := s.RunActions(ctx, action); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// ExecuteScript evaluates expression in the page, awaiting promises, and
// decodes the result into res when res is non-nil.
func (s *Session) ExecuteScript(ctx context.Context, expression string, res interface{}) error {
	return s.RunActions(ctx, chromedp.Evaluate(expression, res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

// InjectScriptPersistently adds a script that runs on every new document in the active tab.
func (s *Session) InjectScriptPersistently(ctx context.Context, script string) error {
	var scriptID page.ScriptIdentifier
	err := s.RunActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		scriptID, err = page.AddScriptToEvaluateOnNewDocument(script).Do(c)
		return err
	}))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("could not inject persistent script: %w", err)
	}
	s.logger.Debug("Injected persistent script.", zap.String("script_id", string(scriptID)))
	return nil
}

// GoBack navigates one entry back in the tab history.
func (s *Session) GoBack(ctx context.Context) error { return s.navigateHistory(ctx, -1) }

// GoForward navigates one entry forward in the tab history.
func (s *Session) GoForward(ctx context.Context) error { return s.navigateHistory(ctx, 1) }

func (s *Session) navigateHistory(ctx context.Context, delta int64) error {
	err := s.RunActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		current, entries, err := page.GetNavigationHistory().Do(c)
		if err != nil {
			return err
		}
		next := current + delta
		if next < 0 || next >= int64(len(entries)) {
			return ErrHistoryBoundary
		}
		return page.NavigateToHistoryEntry(entries[next].ID).Do(c)
	}))
	if err != nil {
		return err
	}
	s.settleAfterNavigation(ctx)
	return nil
}

// Reload reloads the active tab.
func (s *Session) Reload(ctx context.Context) error {
	if err := s.RunActions(ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	s.settleAfterNavigation(ctx)
	return nil
}

func (s *Session) settleAfterNavigation(ctx context.Context) {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.Network.NavigationTimeout)
	defer cancel()
	if err := s.waitReadyState(waitCtx); err != nil {
		s.logger.Debug("Page did not settle after history navigation.", zap.Error(err))
	}
}

// WaitForStable waits until the page has been free of DOM mutations for domIdle
// and free of finished resource loads for networkIdle. Hitting timeout is not
// an error; the page is used as it is.
func (s *Session) WaitForStable(ctx context.Context, networkIdle, domIdle, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stable bool
	err := s.RunActions(waitCtx, chromedp.Evaluate(stabilityScript(networkIdle, domIdle, timeout), &stable,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams { return p.WithAwaitPromise(true) },
	))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("Page did not stabilize in time.", zap.Duration("timeout", timeout), zap.Error(err))
	}
	return nil
}

// browserExecutor returns a context whose commands go to the browser endpoint
// rather than a tab.
func (s *Session) browserExecutor(ctx context.Context) (context.Context, error) {
	c := chromedp.FromContext(s.browserCtx)
	if c == nil || c.Browser == nil {
		return nil, errors.New("browser is not running")
	}
	return cdp.WithExecutor(ctx, c.Browser), nil
}

// Tabs lists the open page targets.
func (s *Session) Tabs(ctx context.Context) ([]schemas.TabInfo, error) {
	if s.closed() {
		return nil, ErrSessionClosed
	}
	infos, err := chromedp.Targets(s.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("could not list targets: %w", err)
	}

	active := target.ID(s.TargetID())
	var tabs []schemas.TabInfo
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		tabs = append(tabs, schemas.TabInfo{
			TargetID: string(info.TargetID),
			URL:      info.URL,
			Title:    info.Title,
			Active:   info.TargetID == active,
		})
	}
	return tabs, nil
}

// NewTab opens url (about:blank when empty) in a new tab and makes it active.
func (s *Session) NewTab(ctx context.Context, url string) (schemas.TabInfo, error) {
	if s.closed() {
		return schemas.TabInfo{}, ErrSessionClosed
	}
	if url == "" {
		url = "about:blank"
	}
	bctx, err := s.browserExecutor(ctx)
	if err != nil {
		return schemas.TabInfo{}, err
	}
	id, err := target.CreateTarget(url).Do(bctx)
	if err != nil {
		return schemas.TabInfo{}, fmt.Errorf("failed to create target: %w", err)
	}
	if err := s.SwitchTab(ctx, string(id)); err != nil {
		return schemas.TabInfo{}, err
	}
	return schemas.TabInfo{TargetID: string(id), URL: url, Active: true}, nil
}

// SwitchTab makes the tab with the given target id active, attaching to it on
// first use.
func (s *Session) SwitchTab(ctx context.Context, id string) error {
	if s.closed() {
		return ErrSessionClosed
	}
	tid := target.ID(id)

	s.mu.RLock()
	t, known := s.tabs[tid]
	isInitial := chromedp.FromContext(s.browserCtx).Target != nil && chromedp.FromContext(s.browserCtx).Target.TargetID == tid
	s.mu.RUnlock()

	var tabCtx context.Context
	switch {
	case isInitial:
		tabCtx = s.browserCtx
	case known:
		tabCtx = t.ctx
	default:
		newCtx, cancel := chromedp.NewContext(s.browserCtx, chromedp.WithTargetID(tid))
		runCtx, stop := CombineContext(newCtx, ctx)
		err := chromedp.Run(runCtx, s.setupTasks())
		stop()
		if err != nil {
			cancel()
			return fmt.Errorf("failed to attach to tab %s: %w", id, err)
		}
		tabCtx = newCtx
		s.mu.Lock()
		s.tabs[tid] = &tab{ctx: newCtx, cancel: cancel}
		s.mu.Unlock()
	}

	if bctx, err := s.browserExecutor(ctx); err == nil {
		if err := target.ActivateTarget(tid).Do(bctx); err != nil {
			s.logger.Debug("Could not bring tab to front.", zap.String("target_id", id), zap.Error(err))
		}
	}

	s.mu.Lock()
	s.ctx = tabCtx
	s.targetID = tid
	listeners := make([]*listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		s.attach(tabCtx, l)
	}

	s.logger.Debug("Switched tab.", zap.String("target_id", id))
	return nil
}

// CloseTab closes the tab. Closing the active tab activates another one; the
// last tab cannot be closed.
func (s *Session) CloseTab(ctx context.Context, id string) error {
	tabs, err := s.Tabs(ctx)
	if err != nil {
		return err
	}
	var remaining []schemas.TabInfo
	found := false
	for _, t := range tabs {
		if t.TargetID == id {
			found = true
			continue
		}
		remaining = append(remaining, t)
	}
	if !found {
		return fmt.Errorf("no tab with id %s", id)
	}
	if len(remaining) == 0 {
		return errors.New("cannot close the last tab")
	}

	if s.TargetID() == id {
		if err := s.SwitchTab(ctx, remaining[0].TargetID); err != nil {
			return err
		}
	}

	bctx, err := s.browserExecutor(ctx)
	if err != nil {
		return err
	}
	if err := target.CloseTarget(target.ID(id)).Do(bctx); err != nil {
		return fmt.Errorf("failed to close tab %s: %w", id, err)
	}

	s.mu.Lock()
	if t, ok := s.tabs[target.ID(id)]; ok {
		t.cancel()
		delete(s.tabs, target.ID(id))
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isClosed
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	tabs := s.tabs
	s.tabs = make(map[target.ID]*tab)
	for _, l := range s.listeners {
		l.stopped.Store(true)
	}
	onClose := s.onClose
	started := s.started
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.", zap.Bool("started", started))

	for _, t := range tabs {
		t.cancel()
	}

	if started {
		// Cancel gracefully closes a launched browser and waits for it to
		// exit; bound it by ctx.
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(s.browserCtx) }()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Debug("Browser did not close cleanly.", zap.Error(err))
			}
		case <-ctx.Done():
			s.logger.Warn("Timed out closing the browser; killing it.")
		}
		s.allocCancel()
	} else {
		// Nothing was allocated, so the context cancel funcs return at once.
		s.browserCancel()
		s.allocCancel()
	}

	s.bus.Emit(events.TypeBrowserStopped, events.BrowserStopped{Reason: "closed"})
	if onClose != nil {
		onClose()
	}
	return nil
}
