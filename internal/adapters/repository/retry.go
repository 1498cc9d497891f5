package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/okian/admit/pkg/metrics"
)

// DefaultAttempts bounds Retry when the caller passes a non-positive count.
const DefaultAttempts = 5

const (
	baseBackoff = time.Millisecond
	maxBackoff  = 20 * time.Millisecond
)

// Retry calls fn until it succeeds, fails with anything other than
// ErrConcurrencyConflict, attempts run out or ctx ends. The last conflict is
// returned when attempts run out.
func Retry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = DefaultAttempts
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn(ctx)
		if err != nil && !errors.Is(err, ErrConcurrencyConflict) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(newBackOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(error, time.Duration) { metrics.RecordConcurrencyRetry() }),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	return err
}

// AtomicRetry runs fn as a unit of work on s, retrying conflicts.
func AtomicRetry(ctx context.Context, s Store, attempts int, fn func(ctx context.Context, tx Tx) error) error {
	return Retry(ctx, attempts, func(ctx context.Context) error {
		return s.Atomic(ctx, fn)
	})
}

// newBackOff is exponential with jitter, starting at a millisecond.
func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseBackoff
	b.MaxInterval = maxBackoff
	b.Reset()
	return b
}
