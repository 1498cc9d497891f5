package simulate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/okian/admit/internal/domain/types"
	"github.com/okian/admit/pkg/logger"
)

// Reviewer pacing.
const (
	busyBackoff    = 10 * time.Millisecond
	maxBusyRetries = 50
	// resubmitEvery makes every nth review a deliberate duplicate.
	resubmitEvery = 7
)

// counters are updated by reviewer goroutines.
type counters struct {
	assignments int64
	reviews     int64
	duplicates  int64
	retries     int64
	failures    int64
}

// runReviewers lets cfg.Reviewers reviewers pull work until none is left for
// any of them.
func runReviewers(ctx context.Context, client *HTTPClient, cfg *Config, applicants map[string]Applicant, g *grader, stats *Stats) error {
	log := logger.Named("simulate")
	log.Info(ctx, "starting reviewers", logger.Int("reviewers", cfg.Reviewers))

	var (
		c    counters
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 1; i <= cfg.Reviewers; i++ {
		wg.Add(1)
		go func(reviewerID string) {
			defer wg.Done()
			if err := review(ctx, client, cfg, reviewerID, applicants, g, &c); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", reviewerID, err))
				mu.Unlock()
			}
		}(fmt.Sprintf("reviewer-%02d", i))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for waiting := true; waiting; {
		select {
		case <-done:
			waiting = false
		case <-ticker.C:
			if cfg.Verbose {
				log.Info(ctx, "progress",
					logger.Int64("assignments", atomic.LoadInt64(&c.assignments)),
					logger.Int64("reviews", atomic.LoadInt64(&c.reviews)),
				)
			}
		}
	}

	stats.Assignments = atomic.LoadInt64(&c.assignments)
	stats.Reviews = atomic.LoadInt64(&c.reviews)
	stats.DuplicateRejected = atomic.LoadInt64(&c.duplicates)
	stats.Retries = atomic.LoadInt64(&c.retries)
	stats.Failures = atomic.LoadInt64(&c.failures)
	return errors.Join(errs...)
}

// review is one reviewer's loop: take an assignment, grade it, repeat.
func review(ctx context.Context, client *HTTPClient, cfg *Config, reviewerID string, applicants map[string]Applicant, g *grader, c *counters) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var res types.AssignmentResult
		err := withBusyRetry(ctx, c, func() error {
			return client.post(ctx, "/assignments", types.AssignmentRequest{HackathonID: cfg.HackathonID, ReviewerID: reviewerID}, &res)
		})
		if err != nil {
			atomic.AddInt64(&c.failures, 1)
			return fmt.Errorf("assignment: %w", err)
		}
		if !res.Assigned {
			return nil
		}
		atomic.AddInt64(&c.assignments, 1)

		regID := res.Assignment.RegistrationID
		a, ok := applicants[regID]
		if !ok {
			return fmt.Errorf("assigned unknown registration %s", regID)
		}
		req := types.ReviewRequest{RegistrationID: regID, ReviewerID: reviewerID, Grade: string(g.judge(a.Quality))}
		err = withBusyRetry(ctx, c, func() error {
			return client.post(ctx, "/reviews", req, nil)
		})
		if err != nil {
			atomic.AddInt64(&c.failures, 1)
			return fmt.Errorf("review %s: %w", regID, err)
		}
		n := atomic.AddInt64(&c.reviews, 1)

		if n%resubmitEvery == 0 {
			err := client.post(ctx, "/reviews", req, nil)
			if statusOf(err) != http.StatusConflict {
				atomic.AddInt64(&c.failures, 1)
				return fmt.Errorf("duplicate review of %s was not rejected: %v", regID, err)
			}
			atomic.AddInt64(&c.duplicates, 1)
		}
	}
}

// withBusyRetry repeats fn while the service answers 503.
func withBusyRetry(ctx context.Context, c *counters, fn func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn()
		if err != nil && statusOf(err) != http.StatusServiceUnavailable {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(busyBackoff)),
		backoff.WithMaxTries(maxBusyRetries+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(error, time.Duration) { atomic.AddInt64(&c.retries, 1) }),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	return err
}
