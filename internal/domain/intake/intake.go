// Package intake accepts registrations handed over by the surrounding CRUD
// layer and enters them into review.
package intake

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/admit/internal/adapters/repository"
	"github.com/okian/admit/internal/domain/audit"
	"github.com/okian/admit/internal/domain/errs"
	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/pkg/logger"
	"github.com/okian/admit/pkg/metrics"
)

// Application is the hand-off from the CRUD layer. ID and SubmittedAt are
// optional.
type Application struct {
	ID          string
	HackathonID string
	ApplicantID string
	SubmittedAt time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

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

// WithPublisher receives registration_created events after commit.
func WithPublisher(p audit.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// Service creates registrations.
type Service struct {
	store     repository.Store
	now       func() time.Time
	logger    logger.Logger
	publisher audit.Publisher
}

// New constructs a Service.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		now:       time.Now,
		logger:    logger.NewNop(),
		publisher: audit.Discard{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRegistration stores app as a pending registration awaiting review.
// A second registration for the same hackathon and applicant, or a reused
// id, fails with errs.ErrDuplicateRegistration.
func (s *Service) CreateRegistration(ctx context.Context, app Application) (model.Registration, error) {
	const op = "create_registration"
	app.ID = strings.TrimSpace(app.ID)
	app.HackathonID = strings.TrimSpace(app.HackathonID)
	app.ApplicantID = strings.TrimSpace(app.ApplicantID)
	if app.HackathonID == "" || app.ApplicantID == "" {
		return model.Registration{}, errs.WrapKind(op, errs.ErrMissingIdentifier, errors.New("hackathon and applicant ids are required"))
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}

	now := s.now().UTC()
	submitted := app.SubmittedAt.UTC()
	if app.SubmittedAt.IsZero() {
		submitted = now
	}

	var (
		batch audit.Batch
		out   model.Registration
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		batch.Reset()
		var err error
		out, err = tx.CreateRegistration(ctx, model.Registration{
			ID:                app.ID,
			HackathonID:       app.HackathonID,
			ApplicantID:       app.ApplicantID,
			SubmittedAt:       submitted,
			ReviewStatus:      model.ReviewPending,
			ApplicationStatus: model.StatusPending,
			UpdatedAt:         now,
		})
		if err != nil {
			return err
		}
		return batch.Append(ctx, tx, model.Event{
			Kind:           model.EventRegistrationCreated,
			RegistrationID: out.ID,
			HackathonID:    out.HackathonID,
			ApplicantID:    out.ApplicantID,
			ActorID:        model.SystemActor,
			To:             string(model.ReviewPending),
			OccurredAt:     now,
		})
	})
	if errors.Is(err, repository.ErrDuplicateKey) {
		err = errs.ErrDuplicateRegistration
	}
	if err != nil {
		return model.Registration{}, errs.Wrap(op, err)
	}

	metrics.RecordRegistrationCreated()
	s.logger.Debug(ctx, "registration created",
		logger.String("registration_id", out.ID),
		logger.String("hackathon_id", out.HackathonID),
	)
	batch.Flush(ctx, s.publisher)
	return out, nil
}
