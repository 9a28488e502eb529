package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is a domain event emitted when a state transition completes
// (e.g. a news post moves from draft to published). Events are immutable
// once published and are not persisted by the bus; persistence, if any,
// is a subscriber's responsibility.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	AggregateID string    `json:"aggregate_id"`
	Payload     any       `json:"payload"`
	OccurredAt  time.Time `json:"occurred_at"`

	// Priority is an optional hint for jobs derived from this event.
	// Empty means PriorityNormal.
	Priority Priority `json:"priority,omitempty"`
}

// NewEvent builds an event stamped with a fresh ID and the current time.
func NewEvent(eventType, aggregateID string, payload any) Event {
	return Event{
		ID:          uuid.New().String(),
		Type:        eventType,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  time.Now().UTC(),
	}
}

// JobPriority resolves the event's priority hint, defaulting to normal.
func (e Event) JobPriority() Priority {
	if e.Priority.IsValid() {
		return e.Priority
	}
	return PriorityNormal
}
