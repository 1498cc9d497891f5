package worker

import (
	"github.com/okian/admit/internal/domain/dedupe"
	"github.com/okian/admit/pkg/logger"
)

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithWorkerCount sets how many goroutines deliver events.
func WithWorkerCount(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workerCount = n
		}
	}
}

// WithDeduper replaces the default event id window.
func WithDeduper(d dedupe.Deduper) Option {
	return func(p *Pool) {
		if d != nil {
			p.dedupe = d
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
