// Package assignment hands reviewers their next registration, keeping the
// load even across registrations and never exceeding the review cap.
package assignment

import (
	"context"
	"errors"
	"time"

	"github.com/okian/admit/internal/adapters/repository"
	"github.com/okian/admit/internal/domain/audit"
	"github.com/okian/admit/internal/domain/errs"
	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/pkg/logger"
	"github.com/okian/admit/pkg/metrics"
)

// DefaultReviewsRequired is the review cap per registration.
const DefaultReviewsRequired = 3

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithReviewsRequired caps the reviewers handed one registration.
func WithReviewsRequired(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.reviewsRequired = n
		}
	}
}

// WithMaxRetries bounds retries after concurrency conflicts.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithClock replaces time.Now.
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

// WithPublisher receives review_assigned events after commit.
func WithPublisher(p audit.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// Service implements NextAssignment.
type Service struct {
	store           repository.Store
	reviewsRequired int
	maxRetries      int
	now             func() time.Time
	logger          logger.Logger
	publisher       audit.Publisher
}

// New constructs a Service over store.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:           store,
		reviewsRequired: DefaultReviewsRequired,
		maxRetries:      repository.DefaultAttempts,
		now:             time.Now,
		logger:          logger.NewNop(),
		publisher:       audit.Discard{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextAssignment picks the next registration for reviewerID across every
// hackathon. It reports false when nothing is eligible.
func (s *Service) NextAssignment(ctx context.Context, reviewerID string) (model.Assignment, bool, error) {
	return s.NextAssignmentIn(ctx, "", reviewerID)
}

// NextAssignmentIn is NextAssignment restricted to one hackathon. An empty
// hackathonID means every hackathon.
//
// Eligible registrations are still open for review, below the review cap and
// untouched by the reviewer. The one with the fewest reviews wins, then the
// oldest submission, then the lowest id.
func (s *Service) NextAssignmentIn(ctx context.Context, hackathonID, reviewerID string) (model.Assignment, bool, error) {
	const op = "next_assignment"
	if reviewerID == "" {
		return model.Assignment{}, false, errs.WrapKind(op, errs.ErrMissingIdentifier, errors.New("reviewer id"))
	}

	var (
		batch    audit.Batch
		assigned model.Assignment
		found    bool
	)
	err := repository.AtomicRetry(ctx, s.store, s.maxRetries, func(ctx context.Context, tx repository.Tx) error {
		batch.Reset()
		found = false

		pool, err := tx.QueryRegistrations(ctx, repository.RegistrationQuery{
			HackathonID:     hackathonID,
			ReviewStatuses:  []model.ReviewStatus{model.ReviewPending, model.ReviewInReview},
			ExcludeReviewer: reviewerID,
			MaxAssigned:     s.reviewsRequired,
			Order:           repository.OrderAssignment,
			Limit:           1,
		})
		if err != nil || len(pool) == 0 {
			return err
		}

		// The pool scan may be stale; re-read under the unit's read set.
		reg, err := tx.GetRegistration(ctx, pool[0].ID)
		if err != nil {
			return err
		}
		if ok, err := s.eligible(ctx, tx, reg, reviewerID); err != nil {
			return err
		} else if !ok {
			return repository.ErrConcurrencyConflict
		}

		now := s.now().UTC()
		a := model.Assignment{RegistrationID: reg.ID, ReviewerID: reviewerID, AssignedAt: now}
		if err := tx.CreateAssignment(ctx, a); err != nil {
			return err
		}

		from := reg.ReviewStatus
		reg.AssignedCount++
		reg.ReviewStatus = model.ReviewInReview
		reg.UpdatedAt = now
		if _, err := tx.UpdateRegistration(ctx, reg); err != nil {
			return err
		}

		if err := batch.Append(ctx, tx, model.Event{
			Kind:           model.EventReviewAssigned,
			RegistrationID: reg.ID,
			HackathonID:    reg.HackathonID,
			ApplicantID:    reg.ApplicantID,
			ActorID:        reviewerID,
			From:           string(from),
			To:             string(reg.ReviewStatus),
			OccurredAt:     now,
		}); err != nil {
			return err
		}

		assigned, found = a, true
		return nil
	})
	if err != nil {
		s.logger.Warn(ctx, "assignment failed",
			logger.String("reviewer_id", reviewerID),
			logger.String("hackathon_id", hackathonID),
			logger.Error(err),
		)
		return model.Assignment{}, false, errs.Wrap(op, err)
	}

	metrics.RecordAssignment(found)
	if !found {
		s.logger.Debug(ctx, "no work available", logger.String("reviewer_id", reviewerID))
		return model.Assignment{}, false, nil
	}
	batch.Flush(ctx, s.publisher)
	s.logger.Debug(ctx, "registration assigned",
		logger.String("registration_id", assigned.RegistrationID),
		logger.String("reviewer_id", reviewerID),
	)
	return assigned, true, nil
}

func (s *Service) eligible(ctx context.Context, tx repository.Tx, reg model.Registration, reviewerID string) (bool, error) {
	if !reg.ReviewStatus.Open() || reg.AssignedCount >= s.reviewsRequired {
		return false, nil
	}
	has, err := tx.HasAssignment(ctx, reg.ID, reviewerID)
	if err != nil || has {
		return false, err
	}
	_, err = tx.FindReview(ctx, reg.ID, reviewerID)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, repository.ErrNotFound):
		return true, nil
	default:
		return false, err
	}
}
