// Package events provides the in-process publish/subscribe bus that
// decouples the upstream relay from its consumers. Delivery is
// fire-and-forget: there is no persistence and no replay, a subscriber
// that is absent when an event is published never sees it.
package events

import (
	"log"
	"sync"

	"github.com/penzjakof/anchat-relay/internal/models"
)

// Handler consumes one published event. Handlers run synchronously on
// the publisher's goroutine and must not block; anything slow hands
// off to its own channel or goroutine.
type Handler func(models.DomainEvent)

// Bus fans published events out to all matching subscribers.
type Bus struct {
	logger *log.Logger

	mu     sync.RWMutex
	byType map[models.EventType][]Handler
	all    []Handler
}

// Option applies configuration to the bus.
type Option func(*Bus)

// WithLogger injects a custom logger implementation.
func WithLogger(l *log.Logger) Option {
	return func(b *Bus) {
		b.logger = l
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		logger: log.Default(),
		byType: make(map[models.EventType][]Handler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t models.EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType[t] = append(b.byType[t], h)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish delivers the event to all subscribers for its type plus all
// catch-all subscribers. A panicking handler is logged and skipped so
// one bad subscriber cannot take down the connection read loop.
func (b *Bus) Publish(e models.DomainEvent) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.byType[e.Type])+len(b.all))
	handlers = append(handlers, b.byType[e.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, e)
	}
}

func (b *Bus) deliver(h Handler, e models.DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("[events] subscriber panic on %s: %v", e.Type, r)
		}
	}()
	h(e)
}
