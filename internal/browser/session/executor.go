// internal/browser/session/executor.go
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/domsnapshot"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/madanlalit/heimdall/api/schemas"
	"github.com/madanlalit/heimdall/internal/browser/dom"
	"github.com/madanlalit/heimdall/internal/browser/element"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Per-call timeouts. The engine tightens the mouse ones further for presses.
const (
	geometryTimeout = 5 * time.Second
	scriptTimeout   = 10 * time.Second
	inputTimeout    = 5 * time.Second
	snapshotTimeout = 30 * time.Second
	metricsTimeout  = 5 * time.Second
)

// Computed styles captured alongside the DOM snapshot, in this order.
var snapshotStyles = []string{"visibility", "display", "opacity"}

// ProtocolError wraps a failed CDP call with the method that was sent.
type ProtocolError struct {
	Method string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("cdp %s: %v", e.Method, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Executor adapts an ActionExecutor to the primitive calls used by the element
// engine and the snapshot builder.
type Executor struct {
	runner ActionExecutor
	logger *zap.Logger
}

var (
	_ element.Executor = (*Executor)(nil)
	_ dom.Source       = (*Executor)(nil)
)

// NewExecutor creates an executor sending its calls through runner.
func NewExecutor(runner ActionExecutor, logger *zap.Logger) *Executor {
	return &Executor{runner: runner, logger: logger.Named("cdp_executor")}
}

// do runs fn as a single action with its own timeout. A deadline hit by the
// per-call timeout is reported as "<method> timed out after <d>".
func (e *Executor) do(ctx context.Context, method string, timeout time.Duration, fn func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := e.runner.RunActions(opCtx, chromedp.ActionFunc(fn))
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		e.logger.Debug("CDP call timed out.", zap.String("method", method), zap.Duration("timeout", timeout))
		return &ProtocolError{Method: method, Err: fmt.Errorf("%s timed out after %v: %w", method, timeout, context.DeadlineExceeded)}
	}
	return &ProtocolError{Method: method, Err: err}
}

func (e *Executor) ContentQuads(ctx context.Context, backendID int64) ([]element.Quad, error) {
	var quads []cdpdom.Quad
	err := e.do(ctx, cdpdom.CommandGetContentQuads, geometryTimeout, func(c context.Context) error {
		var err error
		quads, err = cdpdom.GetContentQuads().WithBackendNodeID(cdp.BackendNodeID(backendID)).Do(c)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]element.Quad, 0, len(quads))
	for _, q := range quads {
		out = append(out, element.Quad(q))
	}
	return out, nil
}

func (e *Executor) BoxModel(ctx context.Context, backendID int64) (element.Quad, error) {
	var model *cdpdom.BoxModel
	err := e.do(ctx, cdpdom.CommandGetBoxModel, geometryTimeout, func(c context.Context) error {
		var err error
		model, err = cdpdom.GetBoxModel().WithBackendNodeID(cdp.BackendNodeID(backendID)).Do(c)
		return err
	})
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, nil
	}
	return element.Quad(model.Content), nil
}

func (e *Executor) ScrollIntoViewIfNeeded(ctx context.Context, backendID int64) error {
	return e.do(ctx, cdpdom.CommandScrollIntoViewIfNeeded, geometryTimeout, func(c context.Context) error {
		return cdpdom.ScrollIntoViewIfNeeded().WithBackendNodeID(cdp.BackendNodeID(backendID)).Do(c)
	})
}

func (e *Executor) ResolveNode(ctx context.Context, backendID int64) (string, error) {
	var obj *runtime.RemoteObject
	err := e.do(ctx, cdpdom.CommandResolveNode, geometryTimeout, func(c context.Context) error {
		var err error
		obj, err = cdpdom.ResolveNode().WithBackendNodeID(cdp.BackendNodeID(backendID)).Do(c)
		return err
	})
	if err != nil {
		return "", err
	}
	if obj == nil {
		return "", nil
	}
	return string(obj.ObjectID), nil
}

// CallFunctionOn runs function with this bound to the object, awaiting a
// returned promise, and decodes the by-value result into res. A thrown
// exception is returned as the error.
func (e *Executor) CallFunctionOn(ctx context.Context, objectID string, function string, res interface{}) error {
	var obj *runtime.RemoteObject
	err := e.do(ctx, runtime.CommandCallFunctionOn, scriptTimeout, func(c context.Context) error {
		var exc *runtime.ExceptionDetails
		var err error
		obj, exc, err = runtime.CallFunctionOn(function).
			WithObjectID(runtime.RemoteObjectID(objectID)).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(c)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		return nil
	})
	if err != nil {
		return err
	}
	if res == nil || obj == nil || len(obj.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(obj.Value, res); err != nil {
		return fmt.Errorf("could not decode script result: %w", err)
	}
	return nil
}

func (e *Executor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	p := input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y).
		WithButton(input.MouseButton(data.Button)).
		WithButtons(data.Buttons).
		WithClickCount(int64(data.ClickCount)).
		WithModifiers(input.Modifier(data.Modifiers))
	if data.Type == schemas.MouseWheel {
		p = p.WithDeltaX(data.DeltaX).WithDeltaY(data.DeltaY)
	}
	return e.do(ctx, input.CommandDispatchMouseEvent, inputTimeout, p.Do)
}

func (e *Executor) DispatchKeyEvent(ctx context.Context, data schemas.KeyEventData) error {
	p := input.DispatchKeyEvent(input.KeyType(data.Type)).
		WithKey(data.Key).
		WithModifiers(input.Modifier(data.Modifiers))
	if data.Code != "" {
		p = p.WithCode(data.Code)
	}
	if data.WindowsVirtualKeyCode != 0 {
		p = p.WithWindowsVirtualKeyCode(data.WindowsVirtualKeyCode).WithNativeVirtualKeyCode(data.WindowsVirtualKeyCode)
	}
	if data.Text != "" {
		p = p.WithText(data.Text).WithUnmodifiedText(data.Text)
	}
	return e.do(ctx, input.CommandDispatchKeyEvent, inputTimeout, p.Do)
}

func (e *Executor) InsertText(ctx context.Context, text string) error {
	return e.do(ctx, input.CommandInsertText, inputTimeout, input.InsertText(text).Do)
}

func (e *Executor) Focus(ctx context.Context, backendID, nodeID int64) error {
	p := cdpdom.Focus()
	if nodeID != 0 {
		p = p.WithNodeID(cdp.NodeID(nodeID))
	} else {
		p = p.WithBackendNodeID(cdp.BackendNodeID(backendID))
	}
	return e.do(ctx, cdpdom.CommandFocus, inputTimeout, p.Do)
}

func (e *Executor) DescribeNode(ctx context.Context, backendID int64) (*element.NodeInfo, error) {
	var node *cdp.Node
	err := e.do(ctx, cdpdom.CommandDescribeNode, geometryTimeout, func(c context.Context) error {
		var err error
		node, err = cdpdom.DescribeNode().WithBackendNodeID(cdp.BackendNodeID(backendID)).Do(c)
		return err
	})
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, &ProtocolError{Method: cdpdom.CommandDescribeNode, Err: errors.New("empty node description")}
	}
	info := &element.NodeInfo{
		NodeID:     int64(node.NodeID),
		NodeName:   node.NodeName,
		Attributes: make(map[string]string, len(node.Attributes)/2),
	}
	for i := 0; i+1 < len(node.Attributes); i += 2 {
		info.Attributes[node.Attributes[i]] = node.Attributes[i+1]
	}
	return info, nil
}

func (e *Executor) LayoutViewport(ctx context.Context) (schemas.Viewport, error) {
	m, err := e.LayoutMetrics(ctx)
	if err != nil {
		return schemas.Viewport{}, err
	}
	return m.Viewport, nil
}

// LayoutMetrics reads the CSS layout viewport and content size.
func (e *Executor) LayoutMetrics(ctx context.Context) (*schemas.LayoutMetrics, error) {
	var viewport *page.LayoutViewport
	var content *cdpdom.Rect
	err := e.do(ctx, page.CommandGetLayoutMetrics, metricsTimeout, func(c context.Context) error {
		var err error
		_, _, _, viewport, _, content, err = page.GetLayoutMetrics().Do(c)
		return err
	})
	if err != nil {
		return nil, err
	}
	if viewport == nil {
		return nil, &ProtocolError{Method: page.CommandGetLayoutMetrics, Err: errors.New("no css layout viewport")}
	}
	m := &schemas.LayoutMetrics{
		Viewport: schemas.Viewport{Width: float64(viewport.ClientWidth), Height: float64(viewport.ClientHeight)},
		ScrollX:  float64(viewport.PageX),
		ScrollY:  float64(viewport.PageY),
	}
	if content != nil {
		m.ContentWidth = content.Width
		m.ContentHeight = content.Height
	}
	return m, nil
}

// CaptureSnapshot captures the flattened DOM with DOM rects and paint order.
func (e *Executor) CaptureSnapshot(ctx context.Context) ([]*domsnapshot.DocumentSnapshot, []string, error) {
	var docs []*domsnapshot.DocumentSnapshot
	var strs []string
	err := e.do(ctx, domsnapshot.CommandCaptureSnapshot, snapshotTimeout, func(c context.Context) error {
		var err error
		docs, strs, err = domsnapshot.CaptureSnapshot(snapshotStyles).
			WithIncludeDOMRects(true).
			WithIncludePaintOrder(true).
			Do(c)
		return err
	})
	return docs, strs, err
}

// FullAXTree returns the accessibility nodes that map to a DOM node.
func (e *Executor) FullAXTree(ctx context.Context) ([]dom.AXNode, error) {
	var nodes []*accessibility.Node
	err := e.do(ctx, accessibility.CommandGetFullAXTree, snapshotTimeout, func(c context.Context) error {
		var err error
		nodes, err = accessibility.GetFullAXTree().Do(c)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]dom.AXNode, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || n.BackendDOMNodeID == 0 {
			continue
		}
		out = append(out, dom.AXNode{
			BackendID: int64(n.BackendDOMNodeID),
			Name:      axString(n.Name),
			Role:      axString(n.Role),
		})
	}
	return out, nil
}

// axString decodes a string-valued AX property, returning "" for anything else.
func axString(v *accessibility.Value) string {
	if v == nil || len(v.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v.Value, &s); err != nil {
		return ""
	}
	return s
}

// Sleep pauses for d unless ctx ends first.
func (e *Executor) Sleep(ctx context.Context, d time.Duration) error {
	return e.runner.RunActions(ctx, chromedp.Sleep(d))
}
