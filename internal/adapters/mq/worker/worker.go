// Package worker runs the pool that delivers committed audit events to a
// Notifier.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/admit/internal/domain/audit"
	"github.com/okian/admit/internal/domain/dedupe"
	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/pkg/logger"
	"github.com/okian/admit/pkg/metrics"
)

// Queue is the buffer workers consume.
type Queue interface {
	Enqueue(ctx context.Context, e model.Event) error
	Dequeue(ctx context.Context) <-chan model.Event
	Close() error
}

// Pool publishes events onto its queue and delivers them with a fixed set of
// workers. An event id is delivered at most once; failed deliveries are
// logged and not retried.
type Pool struct {
	queue       Queue
	notifier    Notifier
	dedupe      dedupe.Deduper
	workerCount int
	logger      logger.Logger

	wg        sync.WaitGroup
	busy      atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	started   atomic.Bool
	stopOnce  sync.Once
}

var _ audit.Publisher = (*Pool)(nil)

// NewPool creates a pool. Call Start to begin delivery.
func NewPool(q Queue, n Notifier, opts ...Option) *Pool {
	p := &Pool{
		queue:       q,
		notifier:    n,
		workerCount: runtime.NumCPU(),
		logger:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.dedupe == nil {
		p.dedupe = dedupe.New()
	}
	if p.notifier == nil {
		p.notifier = LogNotifier{Logger: p.logger}
	}
	return p
}

// Publish implements audit.Publisher. Events that do not fit in the queue are
// dropped with a warning; they remain in the audit log.
func (p *Pool) Publish(ctx context.Context, events ...model.Event) {
	for _, e := range events {
		if err := p.queue.Enqueue(ctx, e); err != nil {
			p.logger.Warn(ctx, "event dropped",
				logger.String("event_id", e.EventID),
				logger.String("kind", string(e.Kind)),
				logger.Error(err),
			)
			continue
		}
		metrics.RecordEventPublished()
	}
}

// Start launches the workers. They run until the queue is closed and drained
// or ctx ends.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	metrics.UpdateWorkerCount(p.workerCount)
	metrics.UpdateWorkerIdleCount(p.workerCount)
	metrics.UpdateWorkerActiveCount(0)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.run(ctx, p.logger.Named("worker-"+strconv.Itoa(i)))
	}
}

func (p *Pool) run(ctx context.Context, log logger.Logger) {
	defer p.wg.Done()
	for e := range p.queue.Dequeue(ctx) {
		p.deliver(ctx, log, e)
	}
}

func (p *Pool) deliver(ctx context.Context, log logger.Logger, e model.Event) { //nolint:gocritic // hugeParam
	if e.EventID != "" && p.dedupe.SeenAndRecord(ctx, e.EventID) {
		metrics.RecordEventDuplicate()
		log.Debug(ctx, "duplicate event skipped", logger.String("event_id", e.EventID))
		return
	}

	active := p.busy.Add(1)
	metrics.UpdateWorkerActiveCount(int(active))
	metrics.UpdateWorkerIdleCount(p.workerCount - int(active))
	defer func() {
		active := p.busy.Add(-1)
		metrics.UpdateWorkerActiveCount(int(active))
		metrics.UpdateWorkerIdleCount(p.workerCount - int(active))
	}()

	if err := p.notifier.Notify(ctx, e); err != nil {
		p.failed.Add(1)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("dispatcher", "notify_failed")
		log.Error(ctx, "notification failed",
			logger.String("event_id", e.EventID),
			logger.String("kind", string(e.Kind)),
			logger.Error(err),
		)
		return
	}
	p.delivered.Add(1)
	metrics.RecordEventDelivered()
}

// Delivered returns the number of successful notifications.
func (p *Pool) Delivered() int64 { return p.delivered.Load() }

// Failed returns the number of notifications that returned an error.
func (p *Pool) Failed() int64 { return p.failed.Load() }

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() {
		if err := p.queue.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	start := time.Now()
	select {
	case <-done:
		p.logger.Debug(ctx, "dispatcher drained", logger.Duration("took", time.Since(start)))
		return nil
	case <-ctx.Done():
		p.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
