// Package workflow records reviews, folds them into applicant beliefs and
// grades a registration once enough reviews have arrived.
package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/admit/internal/adapters/repository"
	"github.com/okian/admit/internal/domain/audit"
	"github.com/okian/admit/internal/domain/belief"
	"github.com/okian/admit/internal/domain/errs"
	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/pkg/logger"
	"github.com/okian/admit/pkg/metrics"
)

// DefaultReviewsRequired is the number of reviews that completes grading.
const DefaultReviewsRequired = 3

// Submission is one reviewer's verdict.
type Submission struct {
	RegistrationID string
	ReviewerID     string
	Grade          model.Grade
	Notes          string
}

// Outcome is the state after a submission committed.
type Outcome struct {
	Review       model.Review
	Registration model.Registration
	Belief       model.ApplicantBelief
	Stats        model.ReviewerStats
	// Graded is set when this submission completed the registration.
	Graded bool
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithReviewsRequired sets the grading threshold.
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

// WithPublisher receives review and grading events after commit.
func WithPublisher(p audit.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// Service implements the review workflow.
type Service struct {
	store           repository.Store
	ledger          *belief.Ledger
	reviewsRequired int
	maxRetries      int
	now             func() time.Time
	logger          logger.Logger
	publisher       audit.Publisher
}

// New constructs a Service. ledger owns the belief update.
func New(store repository.Store, ledger *belief.Ledger, opts ...Option) *Service {
	s := &Service{
		store:           store,
		ledger:          ledger,
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

// ReviewsRequired returns the grading threshold.
func (s *Service) ReviewsRequired() int { return s.reviewsRequired }

// SubmitReview records sub and everything that follows from it in one unit
// of work: the review, an implicit assignment when the reviewer had none, the
// reviewer's counter, the belief update and, at the threshold, the grade.
func (s *Service) SubmitReview(ctx context.Context, sub Submission) (Outcome, error) {
	const op = "submit_review"
	sub.RegistrationID = strings.TrimSpace(sub.RegistrationID)
	sub.ReviewerID = strings.TrimSpace(sub.ReviewerID)
	if sub.RegistrationID == "" || sub.ReviewerID == "" {
		return Outcome{}, errs.WrapKind(op, errs.ErrMissingIdentifier, errors.New("registration and reviewer ids are required"))
	}
	if !sub.Grade.Valid() {
		return Outcome{}, errs.NewKind(op, errs.ErrInvalidGrade)
	}

	var (
		batch audit.Batch
		out   Outcome
	)
	err := repository.AtomicRetry(ctx, s.store, s.maxRetries, func(ctx context.Context, tx repository.Tx) error {
		batch.Reset()
		var err error
		out, err = s.submit(ctx, tx, &batch, sub)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			// A concurrent submission for the same pair won the commit.
			err = errs.ErrDuplicateReview
		}
		s.logger.Warn(ctx, "review rejected",
			logger.String("registration_id", sub.RegistrationID),
			logger.String("reviewer_id", sub.ReviewerID),
			logger.Error(err),
		)
		return Outcome{}, errs.Wrap(op, err)
	}

	metrics.RecordReviewSubmitted(string(sub.Grade))
	if out.Graded {
		metrics.RecordRegistrationGraded(string(out.Registration.Grade))
		s.logger.Info(ctx, "registration graded",
			logger.String("registration_id", out.Registration.ID),
			logger.String("grade", string(out.Registration.Grade)),
			logger.String("graded_by", out.Registration.GradedBy),
		)
	}
	batch.Flush(ctx, s.publisher)
	return out, nil
}

func (s *Service) submit(ctx context.Context, tx repository.Tx, batch *audit.Batch, sub Submission) (Outcome, error) {
	reg, err := tx.GetRegistration(ctx, sub.RegistrationID)
	if errors.Is(err, repository.ErrNotFound) {
		return Outcome{}, errs.ErrRegistrationNotFound
	}
	if err != nil {
		return Outcome{}, err
	}

	if _, err := tx.FindReview(ctx, reg.ID, sub.ReviewerID); err == nil {
		return Outcome{}, errs.ErrDuplicateReview
	} else if !errors.Is(err, repository.ErrNotFound) {
		return Outcome{}, err
	}
	if reg.ReviewStatus == model.ReviewGraded {
		return Outcome{}, errs.ErrRegistrationAlreadyGraded
	}

	now := s.now().UTC()
	review, err := tx.CreateReview(ctx, model.Review{
		ID:             uuid.NewString(),
		RegistrationID: reg.ID,
		ReviewerID:     sub.ReviewerID,
		Grade:          sub.Grade,
		Notes:          sub.Notes,
		CreatedAt:      now,
	})
	if errors.Is(err, repository.ErrDuplicateKey) {
		return Outcome{}, errs.ErrDuplicateReview
	}
	if err != nil {
		return Outcome{}, err
	}

	assigned, err := tx.HasAssignment(ctx, reg.ID, sub.ReviewerID)
	if err != nil {
		return Outcome{}, err
	}
	if !assigned {
		if err := tx.CreateAssignment(ctx, model.Assignment{RegistrationID: reg.ID, ReviewerID: sub.ReviewerID, AssignedAt: now}); err != nil {
			return Outcome{}, err
		}
		reg.AssignedCount++
	}

	stats, err := tx.IncrementReviewerStats(ctx, sub.ReviewerID, now)
	if err != nil {
		return Outcome{}, err
	}
	b, err := s.ledger.Observe(ctx, tx, reg.BeliefKey(), sub.Grade)
	if err != nil {
		return Outcome{}, err
	}

	from := reg.ReviewStatus
	reg.ReviewCount++
	reg.UpdatedAt = now
	if err := batch.Append(ctx, tx, model.Event{
		Kind:           model.EventReviewSubmitted,
		RegistrationID: reg.ID,
		HackathonID:    reg.HackathonID,
		ApplicantID:    reg.ApplicantID,
		ActorID:        sub.ReviewerID,
		Detail:         string(sub.Grade),
		OccurredAt:     now,
	}); err != nil {
		return Outcome{}, err
	}

	graded := false
	if reg.ReviewCount >= s.reviewsRequired {
		reviews, err := tx.ListReviews(ctx, reg.ID)
		if err != nil {
			return Outcome{}, err
		}
		if err := s.grade(ctx, tx, batch, &reg, reviews, sub.ReviewerID, now); err != nil {
			return Outcome{}, err
		}
		graded = true
	} else {
		reg.ReviewStatus = model.ReviewInReview
	}

	updated, err := tx.UpdateRegistration(ctx, reg)
	if err != nil {
		return Outcome{}, err
	}
	if !graded && from != updated.ReviewStatus {
		s.logger.Debug(ctx, "registration in review", logger.String("registration_id", reg.ID))
	}
	return Outcome{Review: review, Registration: updated, Belief: b, Stats: stats, Graded: graded}, nil
}

// grade sets the consensus on reg and records the event. The caller persists
// reg.
func (s *Service) grade(ctx context.Context, tx repository.Tx, batch *audit.Batch, reg *model.Registration, reviews []model.Review, actor string, now time.Time) error {
	grades := make([]model.Grade, len(reviews))
	for i, r := range reviews {
		grades[i] = r.Grade
	}
	from := reg.ReviewStatus
	reg.ReviewStatus = model.ReviewGraded
	reg.Grade = Consensus(grades)
	reg.GradedBy = actor
	reg.GradedAt = &now
	reg.UpdatedAt = now

	return batch.Append(ctx, tx, model.Event{
		Kind:           model.EventRegistrationGraded,
		RegistrationID: reg.ID,
		HackathonID:    reg.HackathonID,
		ApplicantID:    reg.ApplicantID,
		ActorID:        actor,
		From:           string(from),
		To:             string(model.ReviewGraded),
		Detail:         string(reg.Grade),
		OccurredAt:     now,
	})
}

// FinalizeConsensus grades a registration that already holds enough reviews,
// for instance after the threshold was lowered. The grade is attributed to
// model.SystemActor.
func (s *Service) FinalizeConsensus(ctx context.Context, registrationID string) (model.Registration, error) {
	const op = "finalize_consensus"
	registrationID = strings.TrimSpace(registrationID)
	if registrationID == "" {
		return model.Registration{}, errs.WrapKind(op, errs.ErrMissingIdentifier, errors.New("registration id"))
	}

	var (
		batch audit.Batch
		out   model.Registration
	)
	err := repository.AtomicRetry(ctx, s.store, s.maxRetries, func(ctx context.Context, tx repository.Tx) error {
		batch.Reset()
		reg, err := tx.GetRegistration(ctx, registrationID)
		if errors.Is(err, repository.ErrNotFound) {
			return errs.ErrRegistrationNotFound
		}
		if err != nil {
			return err
		}
		if reg.ReviewStatus == model.ReviewGraded {
			return errs.ErrRegistrationAlreadyGraded
		}
		reviews, err := tx.ListReviews(ctx, reg.ID)
		if err != nil {
			return err
		}
		if len(reviews) < s.reviewsRequired {
			return errs.ErrInsufficientReviews
		}
		if err := s.grade(ctx, tx, &batch, &reg, reviews, model.SystemActor, s.now().UTC()); err != nil {
			return err
		}
		out, err = tx.UpdateRegistration(ctx, reg)
		return err
	})
	if err != nil {
		return model.Registration{}, errs.Wrap(op, err)
	}

	metrics.RecordRegistrationGraded(string(out.Grade))
	s.logger.Info(ctx, "registration graded post hoc",
		logger.String("registration_id", out.ID),
		logger.String("grade", string(out.Grade)),
	)
	batch.Flush(ctx, s.publisher)
	return out, nil
}

// Consensus returns the most frequent grade. Ties go to the stronger grade.
// It returns the zero grade for no grades.
func Consensus(grades []model.Grade) model.Grade {
	counts := make(map[model.Grade]int, len(model.Grades))
	for _, g := range grades {
		if g.Valid() {
			counts[g]++
		}
	}
	var best model.Grade
	for _, g := range model.Grades {
		if counts[g] > counts[best] {
			best = g
		}
	}
	return best
}
