package queue

import (
	"context"
	"fmt"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
)

// PriorityQueue dispatches items to one of four buffered channels based on
// priority.
//
// Buffer sizes reflect expected traffic ratios:
//
//	Critical:   500  — operator-escalated work; must drain immediately
//	High:     1 000  — small buffer applies back-pressure quickly
//	Normal:   5 000  — bulk of traffic
//	Low:      2 000  — background / best-effort (dead-letter records)
//
// Workers dequeue via a cascading select: the critical and high channels are
// drained with non-blocking checks before the goroutine enters a fair blocking
// select across all tiers, so urgent items are always served first while the
// worker can still sleep instead of spinning.
type PriorityQueue struct {
	critical chan Item
	high     chan Item
	normal   chan Item
	low      chan Item
}

func New() *PriorityQueue {
	return &PriorityQueue{
		critical: make(chan Item, 500),
		high:     make(chan Item, 1000),
		normal:   make(chan Item, 5000),
		low:      make(chan Item, 2000),
	}
}

// Enqueue places an item on the appropriate priority channel.
// It is non-blocking: if the target channel is full, ErrQueueFull is returned
// immediately rather than blocking the caller.
func (q *PriorityQueue) Enqueue(item Item) error {
	ch, err := q.tier(item.Priority)
	if err != nil {
		return err
	}
	select {
	case ch <- item:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

func (q *PriorityQueue) tier(p domain.Priority) (chan Item, error) {
	switch p {
	case domain.PriorityCritical:
		return q.critical, nil
	case domain.PriorityHigh:
		return q.high, nil
	case domain.PriorityNormal:
		return q.normal, nil
	case domain.PriorityLow:
		return q.low, nil
	default:
		return nil, fmt.Errorf("unknown priority %q", p)
	}
}

// Dequeue blocks until an item is available or ctx is cancelled.
//
// Priority guarantee: non-blocking selects drain critical, then high, before
// a fair blocking select across all four tiers plus the done signal. This
// prevents starvation of urgent items while still letting normal and low
// compete fairly when the upper tiers are empty.
//
// Returns (Item{}, false) when ctx is cancelled (graceful shutdown signal).
func (q *PriorityQueue) Dequeue(ctx context.Context) (Item, bool) {
	select {
	case item := <-q.critical:
		return item, true
	default:
	}

	select {
	case item := <-q.high:
		return item, true
	default:
	}

	select {
	case item := <-q.critical:
		return item, true
	case item := <-q.high:
		return item, true
	case item := <-q.normal:
		return item, true
	case item := <-q.low:
		return item, true
	case <-ctx.Done():
		return Item{}, false
	}
}

// Depths returns the current number of items waiting in each priority tier.
// Used by the metrics handler for the queue-depth snapshot.
func (q *PriorityQueue) Depths() (critical, high, normal, low int) {
	return len(q.critical), len(q.high), len(q.normal), len(q.low)
}
