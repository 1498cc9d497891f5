// Package acceptance drives admission decisions: status transitions, the
// ranked queue of applicants to accept next, RSVP deadline expiry and the
// administrative belief controls.
package acceptance

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/okian/admit/internal/adapters/repository"
	"github.com/okian/admit/internal/domain/audit"
	"github.com/okian/admit/internal/domain/belief"
	"github.com/okian/admit/internal/domain/errs"
	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/pkg/logger"
	"github.com/okian/admit/pkg/metrics"
)

// Defaults.
const (
	DefaultRsvpWindow = 48 * time.Hour
	DefaultMaxLimit   = 500
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithRsvpWindow sets how long an accepted applicant has to answer.
func WithRsvpWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.rsvpWindow = d
		}
	}
}

// WithMaxLimit caps NextToAccept.
func WithMaxLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
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

// WithPublisher receives admission events after commit.
func WithPublisher(p audit.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// Service implements the acceptance pipeline.
type Service struct {
	store      repository.Store
	ledger     *belief.Ledger
	rsvpWindow time.Duration
	maxLimit   int
	maxRetries int
	now        func() time.Time
	logger     logger.Logger
	publisher  audit.Publisher
}

// New constructs a Service.
func New(store repository.Store, ledger *belief.Ledger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		ledger:     ledger,
		rsvpWindow: DefaultRsvpWindow,
		maxLimit:   DefaultMaxLimit,
		maxRetries: repository.DefaultAttempts,
		now:        time.Now,
		logger:     logger.NewNop(),
		publisher:  audit.Discard{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RsvpWindow returns the configured answer window.
func (s *Service) RsvpWindow() time.Duration { return s.rsvpWindow }

// Decide moves a registration to next. Moving into accepted opens the RSVP
// window; moving into confirmed or declined records the answer. Confirming
// after the deadline fails with errs.ErrRsvpDeadlinePassed.
func (s *Service) Decide(ctx context.Context, registrationID string, next model.ApplicationStatus, actorID string) (model.Registration, error) {
	const op = "decide"
	registrationID, actorID = strings.TrimSpace(registrationID), strings.TrimSpace(actorID)
	if registrationID == "" || actorID == "" {
		return model.Registration{}, errs.WrapKind(op, errs.ErrMissingIdentifier, errors.New("registration and actor ids are required"))
	}
	if !next.Valid() {
		return model.Registration{}, errs.NewKind(op, errs.ErrInvalidStatus)
	}

	var (
		batch audit.Batch
		out   model.Registration
		from  model.ApplicationStatus
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
		from = reg.ApplicationStatus
		if !model.CanTransition(from, next) {
			return errs.ErrInvalidTransition
		}

		now := s.now().UTC()
		switch next {
		case model.StatusAccepted:
			deadline := now.Add(s.rsvpWindow)
			reg.AcceptedAt = &now
			reg.AcceptedBy = actorID
			reg.RsvpDeadline = &deadline
			reg.RsvpAt = nil
		case model.StatusConfirmed, model.StatusDeclined:
			if next == model.StatusConfirmed && reg.RsvpDeadline != nil && now.After(*reg.RsvpDeadline) {
				return errs.ErrRsvpDeadlinePassed
			}
			reg.RsvpAt = &now
		}
		reg.ApplicationStatus = next
		reg.DecidedAt = &now
		reg.UpdatedAt = now

		if out, err = tx.UpdateRegistration(ctx, reg); err != nil {
			return err
		}
		return batch.Append(ctx, tx, model.Event{
			Kind:           model.EventStatusChanged,
			RegistrationID: reg.ID,
			HackathonID:    reg.HackathonID,
			ApplicantID:    reg.ApplicantID,
			ActorID:        actorID,
			From:           string(from),
			To:             string(next),
			OccurredAt:     now,
		})
	})
	if err != nil {
		return model.Registration{}, errs.Wrap(op, err)
	}

	metrics.RecordStatusTransition(string(from), string(next))
	s.logger.Info(ctx, "application status changed",
		logger.String("registration_id", out.ID),
		logger.String("from", string(from)),
		logger.String("to", string(next)),
		logger.String("actor_id", actorID),
	)
	batch.Flush(ctx, s.publisher)
	return out, nil
}

// NextToAccept returns up to limit graded registrations of a hackathon that
// still await a decision, best candidate first.
func (s *Service) NextToAccept(ctx context.Context, hackathonID string, limit int) ([]model.Ranked, error) {
	const op = "next_to_accept"
	if strings.TrimSpace(hackathonID) == "" {
		return nil, errs.WrapKind(op, errs.ErrMissingIdentifier, errors.New("hackathon id"))
	}
	if limit < 1 || limit > s.maxLimit {
		return nil, errs.NewKind(op, errs.ErrInvalidLimit)
	}

	start := time.Now()
	var out []model.Ranked
	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.RankForAcceptance(ctx, hackathonID, limit)
		return err
	})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	metrics.RecordRankQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	return out, nil
}

// Position returns the 1-based place of a registration in its hackathon's
// acceptance queue.
func (s *Service) Position(ctx context.Context, registrationID string) (int, error) {
	const op = "acceptance_position"
	var pos int
	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		pos, err = tx.AcceptancePosition(ctx, registrationID)
		return err
	})
	if err != nil {
		return 0, errs.Wrap(op, err)
	}
	return pos, nil
}

// ExpireOverdueRsvps declines every accepted registration whose deadline is
// before now without an answer. Each registration commits on its own after the
// predicate is checked again; registrations answered in the meantime are
// skipped silently. It returns the ids it declined.
func (s *Service) ExpireOverdueRsvps(ctx context.Context, now time.Time) ([]string, error) {
	const op = "expire_overdue_rsvps"
	now = now.UTC()

	var candidates []model.Registration
	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		candidates, err = tx.QueryRegistrations(ctx, repository.RegistrationQuery{
			ApplicationStatuses: []model.ApplicationStatus{model.StatusAccepted},
			RsvpDeadlineBefore:  &now,
			RsvpPending:         true,
		})
		return err
	})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}

	expired := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return expired, errs.Wrap(op, err)
		}
		ok, err := s.expireOne(ctx, c.ID, now)
		if err != nil {
			s.logger.Error(ctx, "rsvp expiry failed", logger.String("registration_id", c.ID), logger.Error(err))
			metrics.RecordErrorByComponent("acceptance", string(errs.KindOf(err)))
			return expired, errs.Wrap(op, err)
		}
		if ok {
			expired = append(expired, c.ID)
		}
	}

	if len(expired) > 0 {
		metrics.RecordRsvpExpired(len(expired))
		s.logger.Info(ctx, "rsvps expired", logger.Int("count", len(expired)))
	}
	return expired, nil
}

func (s *Service) expireOne(ctx context.Context, id string, now time.Time) (bool, error) {
	var (
		batch   audit.Batch
		expired bool
	)
	err := repository.AtomicRetry(ctx, s.store, s.maxRetries, func(ctx context.Context, tx repository.Tx) error {
		batch.Reset()
		expired = false
		reg, err := tx.GetRegistration(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !reg.RsvpOverdue(now) {
			return nil
		}

		reg.ApplicationStatus = model.StatusDeclined
		reg.DecidedAt = &now
		reg.UpdatedAt = now
		if _, err := tx.UpdateRegistration(ctx, reg); err != nil {
			return err
		}
		if err := batch.Append(ctx, tx, model.Event{
			Kind:           model.EventRsvpExpired,
			RegistrationID: reg.ID,
			HackathonID:    reg.HackathonID,
			ApplicantID:    reg.ApplicantID,
			ActorID:        model.SystemActor,
			From:           string(model.StatusAccepted),
			To:             string(model.StatusDeclined),
			Detail:         reg.RsvpDeadline.Format(time.RFC3339),
			OccurredAt:     now,
		}); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired {
		metrics.RecordStatusTransition(string(model.StatusAccepted), string(model.StatusDeclined))
		batch.Flush(ctx, s.publisher)
	}
	return expired, nil
}

// SetPrioritized sets the administrative priority flag of an applicant.
func (s *Service) SetPrioritized(ctx context.Context, key model.BeliefKey, prioritized bool, actorID string) (model.ApplicantBelief, error) {
	const op = "set_prioritized"
	if key.HackathonID == "" || key.ApplicantID == "" || strings.TrimSpace(actorID) == "" {
		return model.ApplicantBelief{}, errs.WrapKind(op, errs.ErrMissingIdentifier, errors.New("hackathon, applicant and actor ids are required"))
	}

	var (
		batch audit.Batch
		out   model.ApplicantBelief
	)
	err := repository.AtomicRetry(ctx, s.store, s.maxRetries, func(ctx context.Context, tx repository.Tx) error {
		batch.Reset()
		regID, err := registrationOf(ctx, tx, key)
		if err != nil {
			return err
		}
		b, changed, err := s.ledger.SetPrioritized(ctx, tx, key, prioritized)
		if err != nil {
			return err
		}
		out = b
		if !changed {
			return nil
		}
		return batch.Append(ctx, tx, model.Event{
			Kind:           model.EventPriorityChanged,
			RegistrationID: regID,
			HackathonID:    key.HackathonID,
			ApplicantID:    key.ApplicantID,
			ActorID:        actorID,
			From:           strconv.FormatBool(!prioritized),
			To:             strconv.FormatBool(prioritized),
			OccurredAt:     s.now().UTC(),
		})
	})
	if err != nil {
		return model.ApplicantBelief{}, errs.Wrap(op, err)
	}
	batch.Flush(ctx, s.publisher)
	return out, nil
}

// ResetBelief returns an applicant's belief to the prior. Stored reviews are
// kept.
func (s *Service) ResetBelief(ctx context.Context, key model.BeliefKey, actorID string) (model.ApplicantBelief, error) {
	const op = "reset_belief"
	if key.HackathonID == "" || key.ApplicantID == "" || strings.TrimSpace(actorID) == "" {
		return model.ApplicantBelief{}, errs.WrapKind(op, errs.ErrMissingIdentifier, errors.New("hackathon, applicant and actor ids are required"))
	}

	var (
		batch audit.Batch
		out   model.ApplicantBelief
	)
	err := repository.AtomicRetry(ctx, s.store, s.maxRetries, func(ctx context.Context, tx repository.Tx) error {
		batch.Reset()
		regID, err := registrationOf(ctx, tx, key)
		if err != nil {
			return err
		}
		b, err := s.ledger.Reset(ctx, tx, key)
		if err != nil {
			return err
		}
		out = b
		return batch.Append(ctx, tx, model.Event{
			Kind:           model.EventBeliefReset,
			RegistrationID: regID,
			HackathonID:    key.HackathonID,
			ApplicantID:    key.ApplicantID,
			ActorID:        actorID,
			OccurredAt:     s.now().UTC(),
		})
	})
	if err != nil {
		return model.ApplicantBelief{}, errs.Wrap(op, err)
	}
	s.logger.Info(ctx, "belief reset",
		logger.String("hackathon_id", key.HackathonID),
		logger.String("applicant_id", key.ApplicantID),
		logger.String("actor_id", actorID),
	)
	batch.Flush(ctx, s.publisher)
	return out, nil
}

// registrationOf finds the registration an applicant-level operation belongs
// to. Applicants without one are unknown to the engine.
func registrationOf(ctx context.Context, tx repository.Tx, key model.BeliefKey) (string, error) {
	regs, err := tx.QueryRegistrations(ctx, repository.RegistrationQuery{
		HackathonID: key.HackathonID,
		ApplicantID: key.ApplicantID,
		Limit:       1,
	})
	if err != nil {
		return "", err
	}
	if len(regs) == 0 {
		return "", errs.ErrRegistrationNotFound
	}
	return regs[0].ID, nil
}
