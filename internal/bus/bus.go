// Package bus provides the in-process domain event bus. It is an explicit
// instance handed to producers and subscribers at construction time; there is
// no global emitter.
package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
)

// Handler consumes one event. A returned error (or a panic) is logged by the
// bus and never reaches the publisher or the other subscribers.
type Handler func(ctx context.Context, evt domain.Event) error

// Bus fans events out synchronously to every subscriber registered for the
// event's type. There is no persistence and no replay: a subscriber added
// after an event was published never sees it.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[int]Handler
	nextID int
	logger *zap.Logger
}

func New(logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[string]map[int]Handler),
		logger: logger,
	}
}

// Subscription identifies one registered handler and allows its removal.
type Subscription struct {
	bus       *Bus
	eventType string
	id        int
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if handlers, ok := s.bus.subs[s.eventType]; ok {
		delete(handlers, s.id)
	}
}

// Subscribe registers a handler for the given event type. Multiple handlers
// per type are allowed; they run independently and in no particular order.
func (b *Bus) Subscribe(eventType string, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[eventType] == nil {
		b.subs[eventType] = make(map[int]Handler)
	}
	b.nextID++
	b.subs[eventType][b.nextID] = h

	return &Subscription{bus: b, eventType: eventType, id: b.nextID}
}

// Publish delivers evt to every subscriber of evt.Type. A subscriber failure
// is caught and logged; it does not prevent the remaining subscribers from
// running, nor does it propagate to the publisher. Publishing with zero
// subscribers is a no-op.
func (b *Bus) Publish(ctx context.Context, evt domain.Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[evt.Type]))
	for _, h := range b.subs[evt.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ctx, evt, h)
	}
}

func (b *Bus) deliver(ctx context.Context, evt domain.Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				zap.String("event_type", evt.Type),
				zap.String("event_id", evt.ID),
				zap.Any("panic", r),
			)
		}
	}()

	if err := h(ctx, evt); err != nil {
		b.logger.Error("event subscriber failed",
			zap.String("event_type", evt.Type),
			zap.String("event_id", evt.ID),
			zap.Error(err),
		)
	}
}
