// internal/browser/element/resolver.go
package element

import (
	"context"
	"math"

	"go.uber.org/zap"
)

// Viewport size assumed when the layout metrics cannot be read.
const (
	fallbackViewportWidth  = 1920
	fallbackViewportHeight = 1080
)

// Resolver turns a handle into a screen point that is safe to click.
type Resolver struct {
	exec   Executor
	logger *zap.Logger
}

// NewResolver creates a resolver on top of the given executor.
func NewResolver(exec Executor, logger *zap.Logger) *Resolver {
	return &Resolver{exec: exec, logger: logger.Named("resolver")}
}

// Locate returns the node's quads, trying content quads, then the box model,
// then the bounding client rect. Returns a KindGeometryUnresolvable error when
// all three come back empty.
func (r *Resolver) Locate(ctx context.Context, h Handle) ([]Quad, error) {
	quads, err := r.exec.ContentQuads(ctx, h.BackendID)
	if err != nil {
		r.logger.Debug("Content quads unavailable.", zap.Int64("backend_id", h.BackendID), zap.Error(err))
	}
	if valid := validQuads(quads); len(valid) > 0 {
		return valid, nil
	}

	content, err := r.exec.BoxModel(ctx, h.BackendID)
	if err != nil {
		r.logger.Debug("Box model unavailable.", zap.Int64("backend_id", h.BackendID), zap.Error(err))
	}
	if content.Valid() {
		return []Quad{content}, nil
	}

	var rect []float64
	if err := r.callOn(ctx, h, scriptBoundingRect, &rect); err != nil {
		r.logger.Debug("Bounding rect script failed.", zap.Int64("backend_id", h.BackendID), zap.Error(err))
	}
	if q := Quad(rect); q.Valid() {
		return []Quad{q}, nil
	}

	return nil, newError(KindGeometryUnresolvable, "locate", h.BackendID, ReasonNoGeometry, nil)
}

// ContentBox returns the bounding box of the node's box-model content quad.
func (r *Resolver) ContentBox(ctx context.Context, h Handle) (*Box, error) {
	content, err := r.exec.BoxModel(ctx, h.BackendID)
	if err != nil {
		return nil, newError(KindTransient, "box", h.BackendID, ReasonNotVisible, err)
	}
	if !content.Valid() {
		return nil, newError(KindTransient, "box", h.BackendID, ReasonNotVisible, nil)
	}
	minX, minY, maxX, maxY := bounds(content)
	return &Box{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, nil
}

// BestPoint picks the click point for a set of quads inside a vw x vh viewport:
// the centroid of the quad with the largest on-screen area, clamped into the
// viewport. Quads entirely off-screen are skipped; if none is visible the first
// valid quad is used, and with no valid quad at all the viewport centre.
func BestPoint(quads []Quad, vw, vh float64) Point {
	var best Quad
	bestArea := 0.0

	for _, q := range quads {
		if !q.Valid() {
			continue
		}
		minX, minY, maxX, maxY := bounds(q)
		if maxX < 0 || maxY < 0 || minX > vw || minY > vh {
			continue
		}
		area := (math.Min(vw, maxX) - math.Max(0, minX)) * (math.Min(vh, maxY) - math.Max(0, minY))
		if area > bestArea {
			bestArea = area
			best = q
		}
	}

	if best == nil {
		for _, q := range quads {
			if q.Valid() {
				best = q
				break
			}
		}
	}
	if best == nil {
		return Point{X: math.Floor(vw / 2), Y: math.Floor(vh / 2)}
	}

	c := centroid(best)
	return Point{
		X: math.Floor(clamp(c.X, 0, vw-1)),
		Y: math.Floor(clamp(c.Y, 0, vh-1)),
	}
}

// VerifyHit asks the page which element is at p. The hit counts when it is
// the target, inside it, or contains it. Otherwise the interceptor is described
// as tag#id.class. Failures to check are treated as a hit.
func (r *Resolver) VerifyHit(ctx context.Context, h Handle, p Point) (bool, string) {
	var res hitTestResult
	if err := r.callOn(ctx, h, hitTestScript(p.X, p.Y), &res); err != nil {
		r.logger.Debug("Hit test failed, assuming target is reachable.", zap.Int64("backend_id", h.BackendID), zap.Error(err))
		return true, ""
	}
	return res.OK, res.Interceptor
}

// CheckPointerEvents reports false only when the computed pointer-events is none.
func (r *Resolver) CheckPointerEvents(ctx context.Context, h Handle) bool {
	var value string
	if err := r.callOn(ctx, h, scriptPointerEvents, &value); err != nil {
		r.logger.Debug("pointer-events check failed.", zap.Int64("backend_id", h.BackendID), zap.Error(err))
		return true
	}
	return value != "none"
}

// Viewport returns the layout viewport size, or 1920x1080 when unknown.
func (r *Resolver) Viewport(ctx context.Context) (float64, float64) {
	vp, err := r.exec.LayoutViewport(ctx)
	if err != nil || vp.Width <= 0 || vp.Height <= 0 {
		if err != nil {
			r.logger.Debug("Layout viewport unavailable, using fallback size.", zap.Error(err))
		}
		return fallbackViewportWidth, fallbackViewportHeight
	}
	return vp.Width, vp.Height
}

// callOn resolves the handle and runs function on it.
func (r *Resolver) callOn(ctx context.Context, h Handle, function string, res interface{}) error {
	objectID, err := r.exec.ResolveNode(ctx, h.BackendID)
	if err != nil {
		return newError(KindTransient, "resolve", h.BackendID, ReasonResolveFailed, err)
	}
	if objectID == "" {
		return newError(KindTransient, "resolve", h.BackendID, ReasonResolveFailed, nil)
	}
	return r.exec.CallFunctionOn(ctx, objectID, function, res)
}

func validQuads(quads []Quad) []Quad {
	var out []Quad
	for _, q := range quads {
		if q.Valid() {
			out = append(out, q)
		}
	}
	return out
}

func bounds(q Quad) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for i := 0; i+1 < 8; i += 2 {
		minX = math.Min(minX, q[i])
		maxX = math.Max(maxX, q[i])
		minY = math.Min(minY, q[i+1])
		maxY = math.Max(maxY, q[i+1])
	}
	return
}

func centroid(q Quad) Point {
	var sx, sy float64
	n := 0
	for i := 0; i+1 < len(q); i += 2 {
		sx += q[i]
		sy += q[i+1]
		n++
	}
	return Point{X: sx / float64(n), Y: sy / float64(n)}
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Max(lo, math.Min(hi, v))
}
