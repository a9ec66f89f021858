package element

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/madanlalit/heimdall/api/schemas"
)

func TestBestPoint(t *testing.T) {
	tests := []struct {
		name   string
		quads  []Quad
		vw, vh float64
		want   Point
	}{
		{
			name:  "single quad inside viewport uses centroid",
			quads: []Quad{elementQuad},
			vw:    1280, vh: 800,
			want: Point{X: 60, Y: 40},
		},
		{
			name:  "partially off-screen quad is clamped to the viewport",
			quads: []Quad{{-50, 10, 50, 10, 50, 30, -50, 30}},
			vw:    1280, vh: 800,
			want: Point{X: 0, Y: 20},
		},
		{
			name: "largest visible area wins",
			quads: []Quad{
				{0, 0, 50, 0, 50, 50, 0, 50},
				{1200, 0, 1400, 0, 1400, 100, 1200, 100},
			},
			vw: 1280, vh: 800,
			want: Point{X: 1279, Y: 50},
		},
		{
			name:  "entirely off-screen falls back to the first quad clamped",
			quads: []Quad{{2000, 2000, 2100, 2000, 2100, 2100, 2000, 2100}},
			vw:    1280, vh: 800,
			want: Point{X: 1279, Y: 799},
		},
		{
			name:  "short quads are skipped",
			quads: []Quad{{1, 2, 3}, elementQuad},
			vw:    1280, vh: 800,
			want: Point{X: 60, Y: 40},
		},
		{
			name:  "no valid quads yields the viewport centre",
			quads: []Quad{{1, 2, 3, 4}},
			vw:    1001, vh: 601,
			want: Point{X: 500, Y: 300},
		},
		{
			name:  "empty input yields the viewport centre",
			quads: nil,
			vw:    1280, vh: 800,
			want: Point{X: 640, Y: 400},
		},
		{
			name:  "fractional centroid is floored",
			quads: []Quad{{0, 0, 3, 0, 3, 3, 0, 3}},
			vw:    1280, vh: 800,
			want: Point{X: 1, Y: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BestPoint(tt.quads, tt.vw, tt.vh))
		})
	}
}

func TestResolver_Locate(t *testing.T) {
	ctx := context.Background()
	h := Handle{BackendID: 5}

	t.Run("content quads", func(t *testing.T) {
		exec := newMockExecutor()
		exec.MockContentQuads = func(context.Context, int64) ([]Quad, error) {
			return []Quad{{1, 2}, elementQuad}, nil
		}
		quads, err := NewResolver(exec, zaptest.NewLogger(t)).Locate(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, []Quad{elementQuad}, quads, "invalid quads are dropped")
	})

	t.Run("falls back to the box model", func(t *testing.T) {
		exec := newMockExecutor()
		exec.MockContentQuads = func(context.Context, int64) ([]Quad, error) {
			return nil, errors.New("Could not compute content quads.")
		}
		box := Quad{0, 0, 10, 0, 10, 10, 0, 10}
		exec.MockBoxModel = func(context.Context, int64) (Quad, error) { return box, nil }

		quads, err := NewResolver(exec, zaptest.NewLogger(t)).Locate(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, []Quad{box}, quads)
	})

	t.Run("falls back to the bounding rect script", func(t *testing.T) {
		exec := newMockExecutor()
		exec.MockContentQuads = func(context.Context, int64) ([]Quad, error) { return nil, nil }
		exec.MockBoxModel = func(context.Context, int64) (Quad, error) { return nil, errors.New("no box") }
		exec.MockCallFunctionOn = func(_ context.Context, _, fn string) (interface{}, error) {
			if fn == scriptBoundingRect {
				return []float64{5, 5, 15, 5, 15, 25, 5, 25}, nil
			}
			return nil, nil
		}

		quads, err := NewResolver(exec, zaptest.NewLogger(t)).Locate(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, []Quad{{5, 5, 15, 5, 15, 25, 5, 25}}, quads)
	})

	t.Run("no geometry at all", func(t *testing.T) {
		exec := newMockExecutor()
		exec.MockContentQuads = func(context.Context, int64) ([]Quad, error) { return nil, nil }
		exec.MockBoxModel = func(context.Context, int64) (Quad, error) { return Quad{}, nil }

		_, err := NewResolver(exec, zaptest.NewLogger(t)).Locate(ctx, h)
		require.Error(t, err)
		assert.Equal(t, KindGeometryUnresolvable, KindOf(err))
		assert.Contains(t, err.Error(), "no geometry found")
		assert.True(t, IsRetryable(err))
	})
}

func TestResolver_VerifyHit(t *testing.T) {
	ctx := context.Background()
	h := Handle{BackendID: 5}

	t.Run("target at point", func(t *testing.T) {
		exec := newMockExecutor()
		ok, interceptor := NewResolver(exec, zaptest.NewLogger(t)).VerifyHit(ctx, h, Point{X: 60, Y: 40})
		assert.True(t, ok)
		assert.Empty(t, interceptor)
		assert.True(t, exec.ran("elementFromPoint(60, 40)"))
	})

	t.Run("intercepted", func(t *testing.T) {
		exec := newMockExecutor()
		exec.MockCallFunctionOn = func(context.Context, string, string) (interface{}, error) {
			return map[string]interface{}{"ok": false, "interceptor": "div#overlay.modal"}, nil
		}
		ok, interceptor := NewResolver(exec, zaptest.NewLogger(t)).VerifyHit(ctx, h, Point{X: 1, Y: 1})
		assert.False(t, ok)
		assert.Equal(t, "div#overlay.modal", interceptor)
	})

	t.Run("errors count as a hit", func(t *testing.T) {
		exec := newMockExecutor()
		exec.MockResolveNode = func(context.Context, int64) (string, error) { return "", errors.New("gone") }
		ok, interceptor := NewResolver(exec, zaptest.NewLogger(t)).VerifyHit(ctx, h, Point{})
		assert.True(t, ok)
		assert.Empty(t, interceptor)
	})
}

func TestResolver_CheckPointerEvents(t *testing.T) {
	ctx := context.Background()
	h := Handle{BackendID: 5}

	exec := newMockExecutor()
	r := NewResolver(exec, zaptest.NewLogger(t))
	assert.True(t, r.CheckPointerEvents(ctx, h))

	exec.MockCallFunctionOn = func(context.Context, string, string) (interface{}, error) { return "none", nil }
	assert.False(t, r.CheckPointerEvents(ctx, h))

	exec.MockCallFunctionOn = func(context.Context, string, string) (interface{}, error) {
		return nil, errors.New("detached")
	}
	assert.True(t, r.CheckPointerEvents(ctx, h), "errors assume pointer events are enabled")
}

func TestResolver_Viewport(t *testing.T) {
	ctx := context.Background()
	exec := newMockExecutor()
	r := NewResolver(exec, zaptest.NewLogger(t))

	w, h := r.Viewport(ctx)
	assert.Equal(t, 1280.0, w)
	assert.Equal(t, 800.0, h)

	exec.MockLayoutViewport = func(context.Context) (schemas.Viewport, error) {
		return schemas.Viewport{}, errors.New("no metrics")
	}
	w, h = r.Viewport(ctx)
	assert.Equal(t, 1920.0, w)
	assert.Equal(t, 1080.0, h)

	exec.MockLayoutViewport = func(context.Context) (schemas.Viewport, error) {
		return schemas.Viewport{Width: 0, Height: 700}, nil
	}
	w, h = r.Viewport(ctx)
	assert.Equal(t, 1920.0, w)
	assert.Equal(t, 1080.0, h)
}

func TestResolver_ContentBox(t *testing.T) {
	ctx := context.Background()
	exec := newMockExecutor()
	r := NewResolver(exec, zaptest.NewLogger(t))

	box, err := r.ContentBox(ctx, Handle{BackendID: 5})
	require.NoError(t, err)
	assert.Equal(t, Box{X: 10, Y: 20, Width: 100, Height: 40}, *box)
	assert.Equal(t, Point{X: 60, Y: 40}, box.Center())

	exec.MockBoxModel = func(context.Context, int64) (Quad, error) { return nil, errors.New("no box") }
	_, err = r.ContentBox(ctx, Handle{BackendID: 5})
	require.Error(t, err)
	assert.Equal(t, KindTransient, KindOf(err))
	assert.Contains(t, err.Error(), "element 5: not visible")
}

func TestResolver_CallOnEmptyObjectID(t *testing.T) {
	exec := newMockExecutor()
	exec.MockResolveNode = func(context.Context, int64) (string, error) { return "", nil }
	r := NewResolver(exec, zaptest.NewLogger(t))

	err := r.callOn(context.Background(), Handle{BackendID: 9}, scriptClick, nil)
	require.Error(t, err)
	assert.Equal(t, KindTransient, KindOf(err))
	assert.Contains(t, err.Error(), ReasonResolveFailed)
}
