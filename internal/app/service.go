// Package service wires the review engine together and exposes the
// operations the HTTP API depends on.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	eventqueue "github.com/okian/admit/internal/adapters/mq/queue"
	workerpool "github.com/okian/admit/internal/adapters/mq/worker"
	"github.com/okian/admit/internal/adapters/repository"
	"github.com/okian/admit/internal/adapters/repository/memory"
	"github.com/okian/admit/internal/adapters/repository/postgres"
	"github.com/okian/admit/internal/config"
	"github.com/okian/admit/internal/domain/acceptance"
	"github.com/okian/admit/internal/domain/assignment"
	"github.com/okian/admit/internal/domain/belief"
	"github.com/okian/admit/internal/domain/dedupe"
	"github.com/okian/admit/internal/domain/errs"
	"github.com/okian/admit/internal/domain/intake"
	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/internal/domain/rating"
	"github.com/okian/admit/internal/domain/workflow"
	"github.com/okian/admit/pkg/logger"
	"github.com/okian/admit/pkg/metrics"
)

const stopTimeout = 10 * time.Second

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

// Service owns the store, the domain services, the event dispatcher and the
// RSVP expiry sweeper.
type Service struct {
	mu sync.RWMutex

	cfg      config.Config
	store    repository.Store
	ownStore bool
	notifier workerpool.Notifier
	now      func() time.Time

	intake     *intake.Service
	assignment *assignment.Service
	workflow   *workflow.Service
	acceptance *acceptance.Service

	queue   *eventqueue.Queue
	pool    *workerpool.Pool
	sweeper *sweeper

	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = *cfg
		}
	}
}

// WithStore injects a store instead of opening one from the configured
// driver. The caller keeps ownership and closes it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithNotifier sets where committed events are delivered. The default logs
// them.
func WithNotifier(n workerpool.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithClock replaces time.Now in every domain service.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		cfg: *config.New(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and starts the dispatcher and the sweeper.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	s.logger.Info(ctx, "starting review service...")

	if s.store == nil {
		store, err := s.openStore(ctx)
		if err != nil {
			return err
		}
		s.store = store
		s.ownStore = true
	}

	ledger, err := belief.New(s.rater(),
		belief.WithPrior(s.cfg.PriorMean, s.cfg.PriorVariance),
		belief.WithClock(s.now),
	)
	if err != nil {
		s.closeOwnStore(ctx)
		return err
	}

	// Background work outlives the start request.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.queue = eventqueue.New(eventqueue.WithCapacity(s.cfg.EventQueueSize))
	s.pool = workerpool.NewPool(s.queue, s.notifier,
		workerpool.WithWorkerCount(s.cfg.WorkerCount),
		workerpool.WithDeduper(dedupe.New(dedupe.WithMaxSize(s.cfg.DedupeSize))),
		workerpool.WithLogger(s.logger.Named("dispatcher")),
	)
	s.pool.Start(runCtx)

	s.intake = intake.New(s.store,
		intake.WithClock(s.now),
		intake.WithPublisher(s.pool),
		intake.WithLogger(s.logger.Named("intake")),
	)
	s.assignment = assignment.New(s.store,
		assignment.WithReviewsRequired(s.cfg.ReviewsRequired),
		assignment.WithMaxRetries(s.cfg.MaxTxRetries),
		assignment.WithClock(s.now),
		assignment.WithPublisher(s.pool),
		assignment.WithLogger(s.logger.Named("assignment")),
	)
	s.workflow = workflow.New(s.store, ledger,
		workflow.WithReviewsRequired(s.cfg.ReviewsRequired),
		workflow.WithMaxRetries(s.cfg.MaxTxRetries),
		workflow.WithClock(s.now),
		workflow.WithPublisher(s.pool),
		workflow.WithLogger(s.logger.Named("workflow")),
	)
	s.acceptance = acceptance.New(s.store, ledger,
		acceptance.WithRsvpWindow(s.cfg.RsvpWindow),
		acceptance.WithMaxLimit(s.cfg.MaxQueueLimit),
		acceptance.WithMaxRetries(s.cfg.MaxTxRetries),
		acceptance.WithClock(s.now),
		acceptance.WithPublisher(s.pool),
		acceptance.WithLogger(s.logger.Named("acceptance")),
	)

	if s.cfg.ExpirySweepInterval > 0 {
		s.sweeper = newSweeper(s.acceptance, s.cfg.ExpirySweepInterval, s.now, s.logger.Named("sweeper"))
		s.sweeper.start(runCtx)
	}

	s.started = true
	s.logger.Info(ctx, "review service started",
		logger.String("store", s.store.Name()),
		logger.Int("reviews_required", s.cfg.ReviewsRequired),
		logger.Duration("rsvp_window", s.cfg.RsvpWindow),
		logger.Int("workers", s.cfg.WorkerCount),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context) (repository.Store, error) {
	switch s.cfg.StoreDriver {
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, s.cfg.PostgresDSN,
			postgres.WithAutoMigrate(s.cfg.PostgresAutoMigrate),
			postgres.WithLogger(s.logger.Named("postgres")),
		)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return memory.New(ctx), nil
	}
}

func (s *Service) rater() *rating.Engine {
	return rating.New(
		rating.WithObservation(model.GradeTop, s.cfg.TopObservationMean, s.cfg.TopObservationVariance),
		rating.WithObservation(model.GradeMiddle, s.cfg.MiddleObservationMean, s.cfg.MiddleObservationVariance),
		rating.WithObservation(model.GradeBottom, s.cfg.BottomObservationMean, s.cfg.BottomObservationVariance),
	)
}

func (s *Service) closeOwnStore(ctx context.Context) {
	if !s.ownStore || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "error closing store", logger.Error(err))
	}
	s.store = nil
	s.ownStore = false
}

// Stop stops the sweeper, drains the dispatcher and closes an owned store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping review service...")

	if s.sweeper != nil {
		s.sweeper.stop()
		s.sweeper = nil
	}
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "dispatcher did not drain", logger.Error(err))
	}
	s.cancel()
	s.closeOwnStore(ctx)

	s.started = false
	s.logger.Info(ctx, "review service stopped")
}

func (s *Service) ready() error {
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// CreateRegistration enters an application into review.
func (s *Service) CreateRegistration(ctx context.Context, app intake.Application) (model.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.Registration{}, err
	}
	return s.intake.CreateRegistration(ctx, app)
}

// GetRegistration looks a registration up.
func (s *Service) GetRegistration(ctx context.Context, id string) (model.RegistrationView, error) {
	const op = "get_registration"
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.RegistrationView{}, err
	}

	var out model.RegistrationView
	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		reg, err := tx.GetRegistration(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return errs.ErrRegistrationNotFound
		}
		if err != nil {
			return err
		}
		out.Registration = reg

		b, err := tx.GetBelief(ctx, reg.BeliefKey())
		switch {
		case err == nil:
			out.Belief = &b
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		pos, err := tx.AcceptancePosition(ctx, reg.ID)
		switch {
		case err == nil:
			out.QueuePosition = pos
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}
		return nil
	})
	if err != nil {
		return model.RegistrationView{}, errs.Wrap(op, err)
	}
	return out, nil
}

// ListEvents returns a registration's audit trail, oldest first.
func (s *Service) ListEvents(ctx context.Context, registrationID string) ([]model.Event, error) {
	const op = "list_events"
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	var events []model.Event
	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetRegistration(ctx, registrationID); errors.Is(err, repository.ErrNotFound) {
			return errs.ErrRegistrationNotFound
		} else if err != nil {
			return err
		}
		var err error
		events, err = tx.ListEvents(ctx, registrationID)
		return err
	})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	return events, nil
}

// NextAssignment hands reviewerID the next registration to review, optionally
// within one hackathon. ok is false when there is no work.
func (s *Service) NextAssignment(ctx context.Context, hackathonID, reviewerID string) (model.Assignment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.Assignment{}, false, err
	}
	return s.assignment.NextAssignmentIn(ctx, strings.TrimSpace(hackathonID), strings.TrimSpace(reviewerID))
}

// SubmitReview records a review.
func (s *Service) SubmitReview(ctx context.Context, sub workflow.Submission) (workflow.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return workflow.Outcome{}, err
	}
	return s.workflow.SubmitReview(ctx, sub)
}

// FinalizeConsensus grades a registration that already holds enough reviews.
func (s *Service) FinalizeConsensus(ctx context.Context, registrationID string) (model.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.Registration{}, err
	}
	return s.workflow.FinalizeConsensus(ctx, registrationID)
}

// Decide applies an admission decision or an RSVP answer.
func (s *Service) Decide(ctx context.Context, registrationID string, status model.ApplicationStatus, actorID string) (model.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.Registration{}, err
	}
	return s.acceptance.Decide(ctx, registrationID, status, actorID)
}

// NextToAccept returns the head of a hackathon's acceptance queue.
func (s *Service) NextToAccept(ctx context.Context, hackathonID string, limit int) ([]model.Ranked, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.acceptance.NextToAccept(ctx, hackathonID, limit)
}

// ExpireOverdueRsvps runs one expiry sweep now.
func (s *Service) ExpireOverdueRsvps(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.acceptance.ExpireOverdueRsvps(ctx, s.now())
}

// SetPrioritized sets an applicant's priority flag.
func (s *Service) SetPrioritized(ctx context.Context, key model.BeliefKey, prioritized bool, actorID string) (model.ApplicantBelief, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.ApplicantBelief{}, err
	}
	return s.acceptance.SetPrioritized(ctx, key, prioritized, actorID)
}

// ResetBelief returns an applicant's belief to the prior.
func (s *Service) ResetBelief(ctx context.Context, key model.BeliefKey, actorID string) (model.ApplicantBelief, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.ApplicantBelief{}, err
	}
	return s.acceptance.ResetBelief(ctx, key, actorID)
}

// ReviewerStats returns a reviewer's counter.
func (s *Service) ReviewerStats(ctx context.Context, reviewerID string) (model.ReviewerStats, error) {
	const op = "reviewer_stats"
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.ReviewerStats{}, err
	}

	var stats model.ReviewerStats
	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		stats, err = tx.GetReviewerStats(ctx, reviewerID)
		if errors.Is(err, repository.ErrNotFound) {
			return errs.ErrReviewerNotFound
		}
		return err
	})
	if err != nil {
		return model.ReviewerStats{}, errs.Wrap(op, err)
	}
	return stats, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":         s.started,
		"storeDriver":     s.cfg.StoreDriver,
		"reviewsRequired": s.cfg.ReviewsRequired,
		"rsvpWindow":      s.cfg.RsvpWindow.String(),
		"workerCount":     s.cfg.WorkerCount,
		"queueSize":       s.cfg.EventQueueSize,
	}
	if !s.started {
		return stats
	}

	stats["queueLength"] = s.queue.Len()
	stats["eventsDelivered"] = s.pool.Delivered()
	stats["eventsFailed"] = s.pool.Failed()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var sum repository.Summary
	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		sum, err = tx.Summarize(ctx)
		return err
	})
	if err != nil {
		s.logger.Warn(ctx, "summary failed", logger.Error(err))
		stats["summaryError"] = err.Error()
		return stats
	}

	byReview := make(map[string]int, len(sum.ByReviewStatus))
	for k, v := range sum.ByReviewStatus {
		byReview[string(k)] = v
	}
	byApplication := make(map[string]int, len(sum.ByApplication))
	for k, v := range sum.ByApplication {
		byApplication[string(k)] = v
	}
	stats["registrations"] = sum.Registrations
	stats["byReviewStatus"] = byReview
	stats["byApplicationStatus"] = byApplication
	stats["awaitingDecision"] = sum.AwaitingDecision
	stats["reviews"] = sum.Reviews
	stats["beliefs"] = sum.Beliefs
	stats["prioritized"] = sum.Prioritized

	metrics.UpdateQueueSize(s.queue.Len())
	metrics.UpdateAwaitingDecision(sum.AwaitingDecision)
	return stats
}
