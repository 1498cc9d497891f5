package service

import (
	"context"
	"sync"
	"time"

	"github.com/okian/admit/pkg/logger"
)

// expirer is the slice of the acceptance pipeline the sweeper drives.
type expirer interface {
	ExpireOverdueRsvps(ctx context.Context, now time.Time) ([]string, error)
}

// sweeper declines overdue RSVPs on a fixed interval.
type sweeper struct {
	target   expirer
	interval time.Duration
	now      func() time.Time
	logger   logger.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func newSweeper(target expirer, interval time.Duration, now func() time.Time, l logger.Logger) *sweeper {
	return &sweeper{target: target, interval: interval, now: now, logger: l}
}

func (w *sweeper) start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.sweep(ctx)
			}
		}
	}()
	w.logger.Debug(ctx, "rsvp sweeper started", logger.Duration("interval", w.interval))
}

func (w *sweeper) sweep(ctx context.Context) {
	expired, err := w.target.ExpireOverdueRsvps(ctx, w.now())
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error(ctx, "rsvp sweep failed", logger.Error(err))
		}
		return
	}
	if len(expired) > 0 {
		w.logger.Info(ctx, "rsvp sweep declined registrations", logger.Int("count", len(expired)))
	}
}

func (w *sweeper) stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
