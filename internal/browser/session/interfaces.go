// internal/browser/session/interfaces.go
package session

import (
	"context"

	"github.com/chromedp/chromedp"
)

// ActionExecutor runs chromedp actions against the active tab. The executor
// adapter and the watchdogs depend on this rather than on Session.
type ActionExecutor interface {
	// RunActions executes actions bounded by both ctx and the session lifetime.
	RunActions(ctx context.Context, actions ...chromedp.Action) error

	// RunBackgroundActions executes actions in a context detached from ctx's
	// cancellation, for follow-up work triggered from an event handler.
	RunBackgroundActions(ctx context.Context, actions ...chromedp.Action) error
}
