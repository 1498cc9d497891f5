// Package queue buffers committed audit events between the services that
// produce them and the dispatcher workers that deliver them.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/pkg/metrics"
)

const defaultCapacity = 10_000

// Queue is a bounded in-memory FIFO. Enqueue never blocks.
type Queue struct {
	events   chan model.Event
	capacity int

	mu     sync.RWMutex
	closed bool
}

// New creates a queue.
func New(opts ...Option) *Queue {
	q := &Queue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan model.Event, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	q.observe()
	return q
}

// Enqueue adds e. It fails with ErrFull when the buffer is exhausted and
// with ErrClosed after Close.
func (q *Queue) Enqueue(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam: events travel by value
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.events <- e:
		metrics.RecordQueueEnqueue()
		q.observe()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns a channel of events. Consumers share the buffer, so each
// event reaches exactly one of them. The channel closes once the queue is
// closed and drained, or when ctx ends.
func (q *Queue) Dequeue(ctx context.Context) <-chan model.Event {
	out := make(chan model.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-q.events:
				if !ok {
					return
				}
				start := time.Now()
				select {
				case out <- e:
					metrics.RecordQueueDequeue()
					metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
					q.observe()
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	return len(q.events)
}

// Close stops accepting events. Buffered events are still delivered.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *Queue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *Queue) observe() {
	size := len(q.events)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
