// Package queue provides the bounded FIFO between admission and the worker
// pool.
package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/paperbridge/paperbridge/schemas"
)

// ErrDeadlineExpired is returned by TakeWithDeadline when no item arrived in
// time. It ends a batch-coalescing window, not an error condition.
var ErrDeadlineExpired = errors.New("queue: deadline expired")

// Queue is a channel-backed bounded FIFO. Capacity is fixed at creation and
// is the absolute cap on queued items; admission backpressure triggers below
// it.
type Queue struct {
	ch         chan *schemas.Item
	unfinished atomic.Int64
}

// New creates a queue with the given capacity.
func New(capacity int) *Queue {
	return &Queue{ch: make(chan *schemas.Item, capacity)}
}

// TryPut enqueues item without blocking. Returns false when the queue is at
// capacity.
func (q *Queue) TryPut(item *schemas.Item) bool {
	select {
	case q.ch <- item:
		q.unfinished.Add(1)
		return true
	default:
		return false
	}
}

// Take blocks until an item is available or ctx is cancelled.
func (q *Queue) Take(ctx context.Context) (*schemas.Item, error) {
	select {
	case item := <-q.ch:
		return item, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TakeWithDeadline waits up to d for an item. A non-positive d degrades to a
// single non-blocking poll, so callers can pass the remaining share of a
// coalescing window directly.
func (q *Queue) TakeWithDeadline(ctx context.Context, d time.Duration) (*schemas.Item, error) {
	if d <= 0 {
		select {
		case item := <-q.ch:
			return item, nil
		default:
			return nil, ErrDeadlineExpired
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case item := <-q.ch:
		return item, nil
	case <-timer.C:
		return nil, ErrDeadlineExpired
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the number of items currently queued.
func (q *Queue) Size() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Done signals completion of one previously taken item. Workers call it
// exactly once per item regardless of outcome.
func (q *Queue) Done() {
	q.unfinished.Add(-1)
}

// Unfinished returns the number of items admitted but not yet completed,
// queued and in-processing alike.
func (q *Queue) Unfinished() int64 {
	return q.unfinished.Load()
}
