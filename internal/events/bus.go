// internal/events/bus.go
package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is the envelope delivered to handlers.
type Event struct {
	ID        string
	Timestamp time.Time
	Type      Type
	Payload   interface{}
}

// Handler receives events. A panicking handler is recovered and logged.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus delivers events synchronously to handlers in registration order.
// Handlers run on the publisher's goroutine, so a handler must not block on
// work that itself publishes.
type Bus struct {
	logger *zap.Logger

	mu     sync.RWMutex
	byType map[Type][]subscription
	any    []subscription
	nextID uint64
	closed bool
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger.Named("event_bus"),
		byType: make(map[Type][]subscription),
	}
}

// On registers handler for one event type and returns a function that removes it.
func (b *Bus) On(t Type, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.byType[t] = append(b.byType[t], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byType[t] = remove(b.byType[t], id)
		if len(b.byType[t]) == 0 {
			delete(b.byType, t)
		}
	}
}

// OnAny registers a handler for every event type. Catch-all handlers run
// after the type-specific ones.
func (b *Bus) OnAny(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.any = append(b.any, subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.any = remove(b.any, id)
	}
}

// Publish wraps payload in an Event and delivers it. It returns an error only
// when the bus is shut down; handler failures never reach the publisher.
func (b *Bus) Publish(t Type, payload interface{}) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("cannot publish %s: event bus is shut down", t)
	}
	// Copy so handlers may subscribe or unsubscribe while running.
	subs := make([]subscription, 0, len(b.byType[t])+len(b.any))
	subs = append(subs, b.byType[t]...)
	subs = append(subs, b.any...)
	b.mu.RUnlock()

	evt := Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      t,
		Payload:   payload,
	}

	for _, s := range subs {
		b.deliver(s, evt)
	}
	return nil
}

// Emit publishes on a possibly nil bus, logging instead of returning errors.
// Components that treat the bus as optional use it.
func (b *Bus) Emit(t Type, payload interface{}) {
	if b == nil {
		return
	}
	if err := b.Publish(t, payload); err != nil {
		b.logger.Debug("Event dropped.", zap.String("type", string(t)), zap.Error(err))
	}
}

func (b *Bus) deliver(s subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked.",
				zap.String("type", string(evt.Type)),
				zap.String("event_id", evt.ID),
				zap.Any("panic", r),
			)
		}
	}()
	s.handler(evt)
}

// HandlerCount returns the number of handlers that would receive an event of type t.
func (b *Bus) HandlerCount(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byType[t]) + len(b.any)
}

// Shutdown drops all handlers and rejects further publishes.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.byType = make(map[Type][]subscription)
	b.any = nil
	b.logger.Debug("Event bus shut down.")
}

func remove(subs []subscription, id uint64) []subscription {
	for i, s := range subs {
		if s.id == id {
			out := make([]subscription, 0, len(subs)-1)
			out = append(out, subs[:i]...)
			return append(out, subs[i+1:]...)
		}
	}
	return subs
}
