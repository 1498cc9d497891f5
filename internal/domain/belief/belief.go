// Package belief keeps applicant beliefs inside a unit of work: it creates
// them from the configured prior, folds grades in through a rating.Rater and
// handles the administrative priority flag and resets.
package belief

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/admit/internal/adapters/repository"
	"github.com/okian/admit/internal/domain/errs"
	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/internal/domain/rating"
	"github.com/okian/admit/pkg/metrics"
)

// Default prior.
const (
	DefaultPriorMean     = 0.0
	DefaultPriorVariance = 1.0
)

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithPrior sets the belief new applicants start from.
func WithPrior(mean, variance float64) Option {
	return func(l *Ledger) {
		l.prior = model.Belief{Mu: mean, SigmaSquared: variance}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// Ledger is the belief store used by the review and admission services.
type Ledger struct {
	rater rating.Rater
	prior model.Belief
	now   func() time.Time
}

// New creates a Ledger. It fails when the prior is degenerate.
func New(rater rating.Rater, opts ...Option) (*Ledger, error) {
	if rater == nil {
		return nil, errors.New("belief: nil rater")
	}
	l := &Ledger{
		rater: rater,
		prior: model.Belief{Mu: DefaultPriorMean, SigmaSquared: DefaultPriorVariance},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	p := l.prior
	if math.IsNaN(p.Mu) || math.IsInf(p.Mu, 0) {
		return nil, fmt.Errorf("%w: prior mean %v", errs.ErrDegenerateVariance, p.Mu)
	}
	if math.IsNaN(p.SigmaSquared) || math.IsInf(p.SigmaSquared, 0) || p.SigmaSquared <= 0 {
		return nil, fmt.Errorf("%w: prior variance %v", errs.ErrDegenerateVariance, p.SigmaSquared)
	}
	return l, nil
}

// Prior returns the starting belief.
func (l *Ledger) Prior() model.Belief { return l.prior }

// Load returns the stored belief for key.
func (l *Ledger) Load(ctx context.Context, tx repository.Tx, key model.BeliefKey) (model.ApplicantBelief, error) {
	b, err := tx.GetBelief(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return model.ApplicantBelief{}, errs.ErrBeliefNotFound
	}
	return b, err
}

// LoadOrCreate returns the stored belief for key, creating it from the prior
// when absent.
func (l *Ledger) LoadOrCreate(ctx context.Context, tx repository.Tx, key model.BeliefKey) (model.ApplicantBelief, error) {
	b, err := tx.GetBelief(ctx, key)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.ApplicantBelief{}, err
	}
	return tx.CreateBelief(ctx, model.ApplicantBelief{
		HackathonID: key.HackathonID,
		ApplicantID: key.ApplicantID,
		Belief:      l.prior,
		UpdatedAt:   l.now().UTC(),
	})
}

// Observe folds one grade into the applicant's belief.
func (l *Ledger) Observe(ctx context.Context, tx repository.Tx, key model.BeliefKey, g model.Grade) (model.ApplicantBelief, error) {
	start := time.Now()
	defer func() {
		metrics.RecordBeliefUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	b, err := l.LoadOrCreate(ctx, tx, key)
	if err != nil {
		return model.ApplicantBelief{}, err
	}
	post, err := l.rater.Update(b.Belief, g)
	if err != nil {
		return model.ApplicantBelief{}, err
	}
	b.Belief = post
	b.ReviewCount++
	b.UpdatedAt = l.now().UTC()
	return tx.UpdateBelief(ctx, b)
}

// Reset returns an existing belief to the prior. The priority flag and the
// stored reviews are kept.
func (l *Ledger) Reset(ctx context.Context, tx repository.Tx, key model.BeliefKey) (model.ApplicantBelief, error) {
	b, err := l.Load(ctx, tx, key)
	if err != nil {
		return model.ApplicantBelief{}, err
	}
	b.Belief = l.prior
	b.ReviewCount = 0
	b.UpdatedAt = l.now().UTC()
	updated, err := tx.UpdateBelief(ctx, b)
	if err != nil {
		return model.ApplicantBelief{}, err
	}
	metrics.RecordBeliefReset()
	return updated, nil
}

// SetPrioritized sets the administrative flag, creating the belief from the
// prior when needed. It reports whether the flag changed.
func (l *Ledger) SetPrioritized(ctx context.Context, tx repository.Tx, key model.BeliefKey, prioritized bool) (model.ApplicantBelief, bool, error) {
	b, err := l.LoadOrCreate(ctx, tx, key)
	if err != nil {
		return model.ApplicantBelief{}, false, err
	}
	if b.Prioritized == prioritized {
		return b, false, nil
	}
	b.Prioritized = prioritized
	b.UpdatedAt = l.now().UTC()
	updated, err := tx.UpdateBelief(ctx, b)
	if err != nil {
		return model.ApplicantBelief{}, false, err
	}
	return updated, true, nil
}
