package service

import (
	"context"
	"sync"

	"voucher-trade-engine/internal/core/domain"
)

// EventQueue is an unbounded FIFO of domain events. Publish never blocks,
// so the write path is not slowed down by matching or notification work.
type EventQueue struct {
	mu     sync.Mutex
	items  []domain.Event
	closed bool
	signal chan struct{} // capacity 1; coalesces wakeups
	done   chan struct{}
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Publish appends e. Events published after Close are dropped.
func (q *EventQueue) Publish(e domain.Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, e)
	q.mu.Unlock()
	q.notify()
}

// Pop returns the oldest event, waiting until one is published. It reports
// false once the queue is closed and empty, or when ctx ends while waiting.
// Events queued before Close are still returned.
func (q *EventQueue) Pop(ctx context.Context) (domain.Event, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			e := q.items[0]
			q.items[0] = domain.Event{}
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.notify()
			}
			return e, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return domain.Event{}, false
		}

		select {
		case <-q.signal:
		case <-q.done:
		case <-ctx.Done():
			return domain.Event{}, false
		}
	}
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting events and wakes every waiting consumer.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *EventQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
