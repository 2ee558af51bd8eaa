package event

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// Handler processes an event. Handlers should be idempotent.
type Handler func(ctx context.Context, e Event) error

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscription)

// Async runs the handler on its own goroutine. The handler receives a context
// that keeps the publisher's values but is never cancelled by it.
func Async() SubscribeOption {
	return func(s *subscription) { s.async = true }
}

// Named labels the subscription in logs.
func Named(name string) SubscribeOption {
	return func(s *subscription) { s.name = name }
}

type subscription struct {
	name    string
	handler Handler
	async   bool
}

type key struct {
	op      Operation
	payload reflect.Type
}

// Bus is an in-process Publisher. Handlers for the specific operation and
// payload type run first, in subscription order, then global handlers.
type Bus struct {
	handlers    map[key][]subscription
	allHandlers []subscription
	logger      *slog.Logger
	mu          sync.RWMutex
	wg          sync.WaitGroup
	closed      bool
}

// NewBus creates an empty bus. A nil logger uses slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[key][]subscription),
		logger:   logger,
	}
}

// Subscribe registers a handler for events of op whose payload type is payloadType.
func (b *Bus) Subscribe(op Operation, payloadType reflect.Type, handler Handler, opts ...SubscribeOption) {
	sub := newSubscription(handler, opts)

	b.mu.Lock()
	defer b.mu.Unlock()

	k := key{op: op, payload: payloadType}
	b.handlers[k] = append(b.handlers[k], sub)
}

// SubscribeAll registers a handler that receives every event.
func (b *Bus) SubscribeAll(handler Handler, opts ...SubscribeOption) {
	sub := newSubscription(handler, opts)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.allHandlers = append(b.allHandlers, sub)
}

// SubscribeSave registers a handler for save events describing values of type T.
func SubscribeSave[T any](b *Bus, handler Handler, opts ...SubscribeOption) {
	b.Subscribe(Save, reflect.TypeFor[T](), handler, opts...)
}

// SubscribeRemove registers a handler for remove events describing values of type T.
func SubscribeRemove[T any](b *Bus, handler Handler, opts ...SubscribeOption) {
	b.Subscribe(Remove, reflect.TypeFor[T](), handler, opts...)
}

// Publish dispatches e to all matching handlers. Events published after Close
// are dropped.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]subscription, 0, len(b.handlers[key{e.Operation, e.PayloadType}])+len(b.allHandlers))
	subs = append(subs, b.handlers[key{e.Operation, e.PayloadType}]...)
	subs = append(subs, b.allHandlers...)
	// Add under the read lock so Close cannot finish waiting before these start.
	for _, sub := range subs {
		if sub.async {
			b.wg.Add(1)
		}
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.async {
			go func(sub subscription) {
				defer b.wg.Done()
				b.dispatch(context.WithoutCancel(ctx), sub, e)
			}(sub)
			continue
		}
		b.dispatch(ctx, sub, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, sub subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"handler", sub.name,
				"operation", e.Operation.String(),
				"payloadType", typeName(e.PayloadType),
				"panic", fmt.Sprint(r),
			)
		}
	}()

	if err := sub.handler(ctx, e); err != nil {
		b.logger.Warn("event handler failed",
			"handler", sub.name,
			"operation", e.Operation.String(),
			"payloadType", typeName(e.PayloadType),
			"repository", typeName(e.Repository),
			"error", err,
		)
	}
}

// Close stops dispatching new events and waits for running async handlers.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
}

// HandlerCount returns the total number of registered handlers.
func (b *Bus) HandlerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.allHandlers)
	for _, subs := range b.handlers {
		count += len(subs)
	}
	return count
}

func newSubscription(handler Handler, opts []SubscribeOption) subscription {
	sub := subscription{handler: handler}
	for _, opt := range opts {
		opt(&sub)
	}
	return sub
}

func typeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	return t.String()
}

var _ Publisher = (*Bus)(nil)
