// internal/browser/watchdog/watchdog.go
package watchdog

import (
	"context"

	"github.com/chromedp/chromedp"
)

// Target is the part of a browser session the watchdogs attach to.
type Target interface {
	// Listen delivers target events to fn until the returned stop is called.
	Listen(fn func(ev interface{})) func()
	RunBackgroundActions(ctx context.Context, actions ...chromedp.Action) error
	TargetID() string
}

// BrowserTarget also delivers browser level events such as downloads.
type BrowserTarget interface {
	Target
	ListenBrowser(fn func(ev interface{})) func()
}
