// internal/browser/watchdog/network_test.go
package watchdog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/madanlalit/heimdall/internal/events"
)

type recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func record(bus *events.Bus) *recorder {
	r := &recorder{}
	bus.OnAny(func(e events.Event) {
		r.mu.Lock()
		r.evs = append(r.evs, e)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) payloads(t events.Type) []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []interface{}
	for _, e := range r.evs {
		if e.Type == t {
			out = append(out, e.Payload)
		}
	}
	return out
}

func setupNetwork(t *testing.T) (*Network, *mockTarget, *recorder) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	bus := events.NewBus(logger)
	rec := record(bus)
	target := newMockTarget()
	n := NewNetwork(context.Background(), logger, bus)
	n.CheckFrequency = 5 * time.Millisecond
	n.Start(target)
	t.Cleanup(n.Stop)
	return n, target, rec
}

func requestSent(id, url string) *network.EventRequestWillBeSent {
	return &network.EventRequestWillBeSent{
		RequestID: network.RequestID(id),
		Request:   &network.Request{URL: url, Method: "GET"},
		Type:      network.ResourceTypeDocument,
	}
}

func TestNetworkRequestLifecycle(t *testing.T) {
	n, target, rec := setupNetwork(t)

	target.emit(requestSent("r1", "https://example.com/"))
	assert.Equal(t, 1, n.InFlight())

	target.emit(&network.EventResponseReceived{
		RequestID: "r1",
		Response:  &network.Response{Status: 200, MimeType: "text/html"},
	})
	target.emit(&network.EventLoadingFinished{RequestID: "r1"})
	assert.Equal(t, 0, n.InFlight())

	started := rec.payloads(events.TypeNetworkRequestStarted)
	require.Len(t, started, 1)
	assert.Equal(t, events.NetworkRequest{
		RequestID:    "r1",
		URL:          "https://example.com/",
		Method:       "GET",
		ResourceType: "Document",
	}, started[0])

	finished := rec.payloads(events.TypeNetworkRequestFinished)
	require.Len(t, finished, 1)
	req := finished[0].(events.NetworkRequest)
	assert.Equal(t, int64(200), req.Status)
	assert.Equal(t, "text/html", req.MimeType)
	assert.False(t, req.Failed)
}

func TestNetworkRedirectIsOneRequest(t *testing.T) {
	n, target, rec := setupNetwork(t)

	target.emit(requestSent("r1", "http://example.com/"))
	target.emit(requestSent("r1", "https://example.com/"))

	assert.Equal(t, 1, n.InFlight())
	assert.Len(t, rec.payloads(events.TypeNetworkRequestStarted), 1)
}

func TestNetworkIgnoresInternalURLs(t *testing.T) {
	n, target, rec := setupNetwork(t)

	target.emit(requestSent("d1", "data:image/png;base64,AAAA"))
	target.emit(requestSent("e1", "chrome-extension://abc/script.js"))
	target.emit(&network.EventLoadingFinished{RequestID: "d1"})

	assert.Zero(t, n.InFlight())
	assert.Empty(t, rec.payloads(events.TypeNetworkRequestStarted))
	assert.Empty(t, rec.payloads(events.TypeNetworkRequestFinished))
}

func TestNetworkFailures(t *testing.T) {
	n, target, rec := setupNetwork(t)

	target.emit(requestSent("a", "https://example.com/aborted"))
	target.emit(&network.EventLoadingFailed{RequestID: "a", ErrorText: "net::ERR_ABORTED", Canceled: true})

	target.emit(requestSent("b", "https://example.com/missing-host"))
	target.emit(&network.EventLoadingFailed{RequestID: "b", ErrorText: "net::ERR_NAME_NOT_RESOLVED"})

	assert.Zero(t, n.InFlight(), "failed requests are no longer in flight")

	failed := n.FailedRequests()
	require.Len(t, failed, 1, "aborted requests are not failures")
	assert.Equal(t, "https://example.com/missing-host", failed[0].URL)
	assert.Equal(t, "net::ERR_NAME_NOT_RESOLVED", failed[0].ErrorText)
	assert.True(t, failed[0].Failed)

	finished := rec.payloads(events.TypeNetworkRequestFinished)
	require.Len(t, finished, 1)
	assert.True(t, finished[0].(events.NetworkRequest).Failed)

	n.ClearFailedRequests()
	assert.Empty(t, n.FailedRequests())
}

func TestNetworkStopDropsEvents(t *testing.T) {
	n, target, _ := setupNetwork(t)

	n.Stop()
	assert.Zero(t, target.listenerCount())

	// Delivered directly since the listener is gone.
	n.handle(requestSent("late", "https://example.com/"))
	assert.Zero(t, n.InFlight())
}

func TestWaitNetworkIdle(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("returns once requests settle", func(t *testing.T) {
		n, target, rec := setupNetwork(t)
		target.emit(requestSent("r1", "https://example.com/slow"))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(30 * time.Millisecond)
			target.emit(&network.EventLoadingFinished{RequestID: "r1"})
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		start := time.Now()
		require.NoError(t, n.WaitNetworkIdle(ctx, 20*time.Millisecond))
		wg.Wait()

		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
		assert.Len(t, rec.payloads(events.TypeNetworkIdle), 1)
	})

	t.Run("honours the caller's context", func(t *testing.T) {
		n, target, _ := setupNetwork(t)
		target.emit(requestSent("stuck", "https://example.com/stuck"))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, n.WaitNetworkIdle(ctx, 10*time.Millisecond), context.DeadlineExceeded)
	})

	t.Run("unblocks on stop", func(t *testing.T) {
		n, target, _ := setupNetwork(t)
		target.emit(requestSent("stuck", "https://example.com/stuck"))

		errCh := make(chan error, 1)
		go func() { errCh <- n.WaitNetworkIdle(context.Background(), 10*time.Millisecond) }()
		time.Sleep(20 * time.Millisecond)
		n.Stop()

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("WaitNetworkIdle did not return after Stop")
		}
	})
}
