package buffer

import (
	"context"
	"sync"

	"github.com/c360/opflow/errors"
)

// Queue is a thread-safe bounded ring buffer.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	closed   bool
	notFull  *sync.Cond
	stats    *Statistics
	metrics  *queueMetrics
	opts     *queueOptions[T]
}

// New creates a queue. A capacity below 1 is raised to 1.
// It fails only when metrics registration was requested and failed.
func New[T any](capacity int, options ...Option[T]) (*Queue[T], error) {
	opts := applyOptions(options...)
	if capacity <= 0 {
		capacity = 1
	}

	var metrics *queueMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newQueueMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "Queue", "New", "metrics registration")
		}
	}

	q := &Queue[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}
	q.notFull = sync.NewCond(&q.mu)
	return q, nil
}

// Push appends item. With the Block policy it waits for space until ctx is
// done; with Reject it returns ErrQueueFull immediately. A closed queue
// returns ErrQueueClosed.
func (q *Queue[T]) Push(ctx context.Context, item T) error {
	if q.opts.policy == Reject {
		return q.TryPush(item)
	}
	return q.PushWait(ctx, item)
}

// PushWait appends item, waiting for space regardless of the policy.
func (q *Queue[T]) PushWait(ctx context.Context, item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.ErrQueueClosed
	}

	if q.size == q.capacity {
		q.stats.Overflow()
		if q.metrics != nil {
			q.metrics.recordOverflow()
		}

		stop := context.AfterFunc(ctx, func() {
			q.mu.Lock()
			q.notFull.Broadcast()
			q.mu.Unlock()
		})
		for q.size == q.capacity && !q.closed && ctx.Err() == nil {
			q.notFull.Wait()
		}
		stop()

		if q.closed {
			q.mu.Unlock()
			return errors.ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			q.mu.Unlock()
			return err
		}
	}

	q.insertLocked(item)
	q.mu.Unlock()

	q.notify()
	return nil
}

// TryPush appends item without waiting.
func (q *Queue[T]) TryPush(item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.ErrQueueClosed
	}
	if q.size == q.capacity {
		q.stats.Overflow()
		q.stats.Reject()
		if q.metrics != nil {
			q.metrics.recordOverflow()
			q.metrics.recordReject()
		}
		q.mu.Unlock()
		return errors.ErrQueueFull
	}
	q.insertLocked(item)
	q.mu.Unlock()

	q.notify()
	return nil
}

func (q *Queue[T]) insertLocked(item T) {
	q.items[q.head] = item
	q.head = (q.head + 1) % q.capacity
	q.size++

	q.stats.Write()
	q.stats.UpdateSize(int64(q.size))
	if q.metrics != nil {
		q.metrics.recordWrite(q.size, q.capacity)
	}
}

func (q *Queue[T]) notify() {
	if q.opts.notify != nil {
		q.opts.notify()
	}
}

// Peek returns the head without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.size == 0 {
		return zero, false
	}
	q.stats.Peek()
	return q.items[q.tail], true
}

// Pop removes and returns the head, or ErrEmpty.
func (q *Queue[T]) Pop() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.size == 0 {
		return zero, errors.ErrEmpty
	}

	item := q.items[q.tail]
	q.items[q.tail] = zero
	q.tail = (q.tail + 1) % q.capacity
	q.size--

	q.stats.Read()
	q.stats.UpdateSize(int64(q.size))
	if q.metrics != nil {
		q.metrics.recordRead(q.size, q.capacity)
	}

	q.notFull.Signal()
	return item, nil
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Capacity returns the maximum number of items.
func (q *Queue[T]) Capacity() int {
	return q.capacity
}

// Policy returns the overflow policy.
func (q *Queue[T]) Policy() Policy {
	return q.opts.policy
}

// Closed reports whether Close was called since the last Reset.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Reset empties the queue and reopens it.
func (q *Queue[T]) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.clearLocked()
	q.closed = false
}

// Close empties the queue and refuses further pushes. Blocked producers wake
// up with ErrQueueClosed. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.clearLocked()
	q.closed = true
}

func (q *Queue[T]) clearLocked() {
	var zero T
	for i := range q.items {
		q.items[i] = zero
	}
	if q.size > 0 {
		q.stats.Drop(int64(q.size))
		if q.metrics != nil {
			q.metrics.recordDrops(q.size)
		}
	}
	q.head, q.tail, q.size = 0, 0, 0

	q.stats.UpdateSize(0)
	if q.metrics != nil {
		q.metrics.updateSize(0, q.capacity)
	}
	q.notFull.Broadcast()
}

// Stats returns the queue statistics.
func (q *Queue[T]) Stats() *Statistics {
	return q.stats
}
