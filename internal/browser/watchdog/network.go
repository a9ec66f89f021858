// internal/browser/watchdog/network.go
package watchdog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"

	"github.com/madanlalit/heimdall/internal/events"
)

const defaultIdleCheckFrequency = 250 * time.Millisecond

// Navigation routinely cancels in-flight requests with this error.
const abortedError = "net::ERR_ABORTED"

// Network tracks in-flight requests on the active tab and reports their
// lifecycle on the event bus.
type Network struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	bus    *events.Bus

	// CheckFrequency is how often WaitNetworkIdle samples the in-flight count.
	CheckFrequency time.Duration

	mu       sync.RWMutex
	inFlight map[network.RequestID]*events.NetworkRequest
	failed   []events.NetworkRequest
	stop     func()
}

// NewNetwork creates a network watchdog. It does nothing until Start.
func NewNetwork(ctx context.Context, logger *zap.Logger, bus *events.Bus) *Network {
	nctx, cancel := context.WithCancel(ctx)
	return &Network{
		ctx:            nctx,
		cancel:         cancel,
		logger:         logger.Named("network_watchdog"),
		bus:            bus,
		CheckFrequency: defaultIdleCheckFrequency,
		inFlight:       make(map[network.RequestID]*events.NetworkRequest),
	}
}

// Start subscribes to the target's network events.
func (n *Network) Start(t Target) {
	stop := t.Listen(n.handle)
	n.mu.Lock()
	n.stop = stop
	n.mu.Unlock()
}

// Stop unsubscribes and unblocks any WaitNetworkIdle call.
func (n *Network) Stop() {
	n.cancel()
	n.mu.Lock()
	stop := n.stop
	n.stop = nil
	n.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (n *Network) handle(ev interface{}) {
	select {
	case <-n.ctx.Done():
		return
	default:
	}

	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		n.onRequest(ev)
	case *network.EventResponseReceived:
		n.onResponse(ev)
	case *network.EventLoadingFinished:
		n.onFinished(ev)
	case *network.EventLoadingFailed:
		n.onFailed(ev)
	}
}

func (n *Network) onRequest(ev *network.EventRequestWillBeSent) {
	if ev.Request == nil || ignoredURL(ev.Request.URL) {
		return
	}
	req := events.NetworkRequest{
		RequestID:    string(ev.RequestID),
		URL:          ev.Request.URL,
		Method:       ev.Request.Method,
		ResourceType: ev.Type.String(),
	}

	n.mu.Lock()
	_, redirect := n.inFlight[ev.RequestID]
	n.inFlight[ev.RequestID] = &req
	pending := len(n.inFlight)
	n.mu.Unlock()

	// A redirect reuses the request id; it is the same request in flight.
	if redirect {
		return
	}
	n.logger.Debug("Request started.", zap.String("request_id", req.RequestID), zap.Int("pending", pending))
	n.bus.Emit(events.TypeNetworkRequestStarted, req)
}

func (n *Network) onResponse(ev *network.EventResponseReceived) {
	if ev.Response == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if req, ok := n.inFlight[ev.RequestID]; ok {
		req.Status = ev.Response.Status
		req.MimeType = ev.Response.MimeType
	}
}

func (n *Network) onFinished(ev *network.EventLoadingFinished) {
	req, ok := n.take(ev.RequestID)
	if !ok {
		return
	}
	n.bus.Emit(events.TypeNetworkRequestFinished, req)
}

func (n *Network) onFailed(ev *network.EventLoadingFailed) {
	req, ok := n.take(ev.RequestID)
	if !ok || ev.ErrorText == abortedError {
		return
	}
	req.Failed = true
	req.ErrorText = ev.ErrorText

	n.mu.Lock()
	n.failed = append(n.failed, req)
	n.mu.Unlock()

	n.logger.Warn("Request failed.", zap.String("url", req.URL), zap.String("error", req.ErrorText))
	n.bus.Emit(events.TypeNetworkRequestFinished, req)
}

func (n *Network) take(id network.RequestID) (events.NetworkRequest, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	req, ok := n.inFlight[id]
	if !ok {
		return events.NetworkRequest{}, false
	}
	delete(n.inFlight, id)
	return *req, true
}

// InFlight returns the number of requests that have not finished.
func (n *Network) InFlight() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.inFlight)
}

// FailedRequests returns the requests that failed for reasons other than
// being aborted.
func (n *Network) FailedRequests() []events.NetworkRequest {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]events.NetworkRequest, len(n.failed))
	copy(out, n.failed)
	return out
}

// ClearFailedRequests forgets recorded failures.
func (n *Network) ClearFailedRequests() {
	n.mu.Lock()
	n.failed = nil
	n.mu.Unlock()
}

// WaitNetworkIdle blocks until no request has been in flight for quietPeriod.
func (n *Network) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	n.logger.Debug("Waiting for network to become idle.")

	timer := time.NewTimer(quietPeriod)
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	defer timer.Stop()

	isIdle := false
	freq := n.CheckFrequency
	if freq <= 0 {
		freq = defaultIdleCheckFrequency
	}
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.ctx.Done():
			return n.ctx.Err()
		case <-ticker.C:
			active := n.InFlight()
			switch {
			case active > 0 && isIdle:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				isIdle = false
			case active == 0 && !isIdle:
				// The timer is stopped here, so Reset is safe.
				timer.Reset(quietPeriod)
				isIdle = true
			}
		case <-timer.C:
			n.logger.Debug("Network is idle.")
			n.bus.Emit(events.TypeNetworkIdle, events.NetworkIdle{InFlight: n.InFlight()})
			return nil
		}
	}
}

func ignoredURL(u string) bool {
	return strings.HasPrefix(u, "data:") || strings.HasPrefix(u, "chrome-extension:")
}
