// internal/browser/element/types.go
package element

import (
	"context"
	"time"

	"github.com/madanlalit/heimdall/api/schemas"
)

// Quad is a page-coordinate quadrilateral: x1,y1 .. x4,y4.
type Quad []float64

// Valid reports whether the quad carries at least four points.
func (q Quad) Valid() bool { return len(q) >= 8 }

// Point is a viewport coordinate in CSS pixels.
type Point struct {
	X float64
	Y float64
}

// Box is an axis-aligned rectangle.
type Box struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Center returns the middle of the box.
func (b Box) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Handle addresses one DOM node for the duration of a single action.
// Handles are built from a backend id each time and never cached, since the
// node they point at may be gone after the next page update.
type Handle struct {
	BackendID int64
	NodeID    int64
}

// NodeInfo is the subset of a described DOM node the engine needs.
type NodeInfo struct {
	NodeID     int64
	NodeName   string
	Attributes map[string]string
}

// ClickOptions selects the button, click count and modifier keys of a click.
type ClickOptions struct {
	Button     schemas.MouseButton
	ClickCount int
	Modifiers  schemas.KeyModifier
}

// DefaultClickOptions is a single left click without modifiers.
func DefaultClickOptions() ClickOptions {
	return ClickOptions{Button: schemas.ButtonLeft, ClickCount: 1}
}

// Executor is the set of browser primitives the resolver and engine are built on.
// The session package adapts a chromedp session to it; tests provide a mock.
type Executor interface {
	ContentQuads(ctx context.Context, backendID int64) ([]Quad, error)
	// BoxModel returns the content quad of the node's box model.
	BoxModel(ctx context.Context, backendID int64) (Quad, error)
	ScrollIntoViewIfNeeded(ctx context.Context, backendID int64) error
	// ResolveNode returns a remote object id usable with CallFunctionOn.
	ResolveNode(ctx context.Context, backendID int64) (string, error)
	// CallFunctionOn calls a function declaration with `this` bound to the
	// object and decodes the by-value result into res (which may be nil).
	CallFunctionOn(ctx context.Context, objectID string, function string, res interface{}) error
	DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error
	DispatchKeyEvent(ctx context.Context, data schemas.KeyEventData) error
	InsertText(ctx context.Context, text string) error
	// Focus focuses by node id when non-zero, otherwise by backend id.
	Focus(ctx context.Context, backendID, nodeID int64) error
	DescribeNode(ctx context.Context, backendID int64) (*NodeInfo, error)
	LayoutViewport(ctx context.Context) (schemas.Viewport, error)
	Sleep(ctx context.Context, d time.Duration) error
}
