// internal/browser/dom/service.go
package dom

import (
	"context"

	"github.com/chromedp/cdproto/domsnapshot"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/madanlalit/heimdall/api/schemas"
)

// Service produces the serialized page state for each agent step.
type Service struct {
	src    Source
	logger *zap.Logger
}

// NewService creates a DOM service reading from src.
func NewService(src Source, logger *zap.Logger) *Service {
	return &Service{src: src, logger: logger.Named("dom")}
}

// GetState captures the page and serializes its interactive elements. It
// never fails: each of the three reads degrades on its own, with a warning.
func (s *Service) GetState(ctx context.Context) *SerializedDOM {
	nodes, metrics := s.capture(ctx)
	out := Serialize(nodes)
	if metrics != nil {
		out.ScrollInfo = &ScrollInfo{
			ViewportWidth:  metrics.Viewport.Width,
			ViewportHeight: metrics.Viewport.Height,
			ScrollX:        metrics.ScrollX,
			ScrollY:        metrics.ScrollY,
			ContentWidth:   metrics.ContentWidth,
			ContentHeight:  metrics.ContentHeight,
		}
	}
	s.logger.Debug("Captured DOM state.", zap.Int("nodes", len(nodes)), zap.Int("interactive", out.ElementCount))
	return out
}

// Nodes returns the fused node list without serializing it.
func (s *Service) Nodes(ctx context.Context) []*Node {
	nodes, _ := s.capture(ctx)
	return nodes
}

func (s *Service) capture(ctx context.Context) ([]*Node, *schemas.LayoutMetrics) {
	var (
		docs    []*domsnapshot.DocumentSnapshot
		strs    []string
		ax      []AXNode
		metrics *schemas.LayoutMetrics
	)

	// The reads are independent; one failing must not cancel the others.
	var g errgroup.Group
	g.Go(func() error {
		var err error
		if docs, strs, err = s.src.CaptureSnapshot(ctx); err != nil {
			s.logger.Warn("DOM snapshot failed.", zap.Error(err))
			docs, strs = nil, nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if ax, err = s.src.FullAXTree(ctx); err != nil {
			s.logger.Warn("Accessibility tree unavailable.", zap.Error(err))
			ax = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if metrics, err = s.src.LayoutMetrics(ctx); err != nil {
			s.logger.Warn("Layout metrics unavailable.", zap.Error(err))
			metrics = nil
		}
		return nil
	})
	_ = g.Wait()

	return BuildNodes(docs, strs, ax), metrics
}
