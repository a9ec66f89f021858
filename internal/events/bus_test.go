package events_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/madanlalit/heimdall/internal/events"
)

func newTestBus(t *testing.T) *events.Bus {
	t.Helper()
	return events.NewBus(zaptest.NewLogger(t))
}

func TestBus_DeliversInRegistrationOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := newTestBus(t)

	var order []string
	b.On(events.TypeElementClicked, func(events.Event) { order = append(order, "first") })
	b.On(events.TypeElementClicked, func(events.Event) { order = append(order, "second") })
	b.OnAny(func(events.Event) { order = append(order, "any") })
	b.On(events.TypeElementTyped, func(events.Event) { order = append(order, "other type") })

	require.NoError(t, b.Publish(events.TypeElementClicked, events.ElementClicked{BackendNodeID: 7}))
	assert.Equal(t, []string{"first", "second", "any"}, order)
}

func TestBus_EventEnvelope(t *testing.T) {
	b := newTestBus(t)

	var got events.Event
	b.On(events.TypeNavigationStarted, func(e events.Event) { got = e })
	require.NoError(t, b.Publish(events.TypeNavigationStarted, events.Navigation{URL: "https://example.com"}))

	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, events.TypeNavigationStarted, got.Type)
	payload, ok := got.Payload.(events.Navigation)
	require.True(t, ok)
	assert.Equal(t, "https://example.com", payload.URL)
}

func TestBus_PanickingHandlerIsIsolated(t *testing.T) {
	b := newTestBus(t)

	called := false
	b.On(events.TypeError, func(events.Event) { panic("boom") })
	b.On(events.TypeError, func(events.Event) { called = true })

	assert.NotPanics(t, func() {
		require.NoError(t, b.Publish(events.TypeError, events.Error{Source: "test", Message: "x"}))
	})
	assert.True(t, called, "handlers after a panicking one must still run")
}

func TestBus_Unsubscribe(t *testing.T) {
	b := newTestBus(t)

	count := 0
	off := b.On(events.TypeStepStarted, func(events.Event) { count++ })
	offAny := b.OnAny(func(events.Event) { count++ })
	assert.Equal(t, 2, b.HandlerCount(events.TypeStepStarted))

	require.NoError(t, b.Publish(events.TypeStepStarted, events.Step{Number: 1}))
	off()
	offAny()
	off() // idempotent
	require.NoError(t, b.Publish(events.TypeStepStarted, events.Step{Number: 2}))

	assert.Equal(t, 2, count)
	assert.Zero(t, b.HandlerCount(events.TypeStepStarted))
}

func TestBus_HandlerMaySubscribeDuringDelivery(t *testing.T) {
	b := newTestBus(t)

	late := 0
	b.On(events.TypeDOMChanged, func(events.Event) {
		b.On(events.TypeDOMChanged, func(events.Event) { late++ })
	})

	require.NoError(t, b.Publish(events.TypeDOMChanged, nil))
	assert.Zero(t, late, "handler added during delivery only sees later events")
	require.NoError(t, b.Publish(events.TypeDOMChanged, nil))
	assert.Equal(t, 1, late)
}

func TestBus_Shutdown(t *testing.T) {
	b := newTestBus(t)
	b.On(events.TypeCrash, func(events.Event) { t.Error("handler must not run after shutdown") })

	b.Shutdown()
	b.Shutdown()

	err := b.Publish(events.TypeCrash, events.Crash{TargetID: "T1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shut down")
	assert.NotPanics(t, func() { b.Emit(events.TypeCrash, nil) })
}

func TestBus_EmitOnNilBus(t *testing.T) {
	var b *events.Bus
	assert.NotPanics(t, func() { b.Emit(events.TypeError, nil) })
}

func TestBus_ConcurrentPublish(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := newTestBus(t)

	var mu sync.Mutex
	received := 0
	b.On(events.TypeNetworkRequestStarted, func(events.Event) {
		mu.Lock()
		received++
		mu.Unlock()
	})

	const publishers, perPublisher = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				_ = b.Publish(events.TypeNetworkRequestStarted, events.NetworkRequest{RequestID: "r"})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, publishers*perPublisher, received)
}
