// Package bus is the console's in-process publish/subscribe register. The
// push transport and the REST client publish on it; the reconciler and the
// terminal projection subscribe.
package bus

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/gautamrajesh007/Interceptor/internal/event"
	"github.com/gautamrajesh007/Interceptor/internal/metrics"
)

// Handler receives a published event. A returned error is logged and
// otherwise ignored.
type Handler func(ev event.Event) error

// Subscription is the handle returned by Subscribe. Dropping a subscription
// is done through the handle, never by comparing handler funcs.
type Subscription struct {
	bus     *Bus
	kind    event.Kind
	handler Handler
}

// Unsubscribe removes the subscription. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.Unsubscribe(s)
}

// Kind returns the event kind the subscription listens to.
func (s *Subscription) Kind() event.Kind { return s.kind }

type Bus struct {
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	handlers map[event.Kind][]*Subscription
}

// New creates an empty bus. m may be nil.
func New(logger *zap.Logger, m *metrics.Metrics) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger:   logger.Named("bus"),
		metrics:  m,
		handlers: make(map[event.Kind][]*Subscription),
	}
}

// Subscribe registers h for kind. Registering the same func twice yields two
// independent subscriptions, and both fire.
func (b *Bus) Subscribe(kind event.Kind, h Handler) *Subscription {
	s := &Subscription{bus: b, kind: kind, handler: h}

	b.mu.Lock()
	defer b.mu.Unlock()
	// Copy on write: a Publish already iterating keeps its own snapshot.
	next := make([]*Subscription, 0, len(b.handlers[kind])+1)
	next = append(next, b.handlers[kind]...)
	b.handlers[kind] = append(next, s)
	return s
}

// On subscribes fn to the kind of T. T must be one of the concrete event
// structs.
func On[T event.Event](b *Bus, fn func(T)) *Subscription {
	var zero T
	return b.Subscribe(zero.Kind(), func(ev event.Event) error {
		if typed, ok := ev.(T); ok {
			fn(typed)
		}
		return nil
	})
}

// Unsubscribe removes s. Unknown or already removed subscriptions are
// ignored.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.handlers[s.kind]
	for i, existing := range current {
		if existing != s {
			continue
		}
		next := make([]*Subscription, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, s.kind)
		} else {
			b.handlers[s.kind] = next
		}
		return
	}
}

// Publish calls every handler registered for ev's kind at the time of the
// call, synchronously and in registration order. A handler that panics or
// returns an error is logged; the remaining handlers still run and nothing
// reaches the caller.
func (b *Bus) Publish(ev event.Event) {
	b.mu.RLock()
	subs := b.handlers[ev.Kind()]
	b.mu.RUnlock()

	for _, s := range subs {
		b.invoke(s, ev)
	}
}

func (b *Bus) invoke(s *Subscription, ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.fail(ev.Kind(), fmt.Errorf("panic: %v", r), zap.Stack("stack"))
		}
	}()
	if err := s.handler(ev); err != nil {
		b.fail(ev.Kind(), err)
	}
}

func (b *Bus) fail(kind event.Kind, err error, fields ...zap.Field) {
	if b.metrics != nil {
		b.metrics.HandlerFailure(string(kind))
	}
	b.logger.Error("event handler failed",
		append([]zap.Field{zap.String("kind", string(kind)), zap.Error(err)}, fields...)...)
}

// Len returns the number of handlers registered for kind.
func (b *Bus) Len(kind event.Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[kind])
}

// Close drops every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[event.Kind][]*Subscription)
}
