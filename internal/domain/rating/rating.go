// Package rating converts review grades into Bayesian updates of an
// applicant's Gaussian belief.
//
// Each grade is treated as one noisy observation of the applicant's latent
// quality with a known mean and variance. The posterior follows the standard
// conjugate update:
//
//	posteriorVariance = 1 / (1/priorVariance + 1/observationVariance)
//	posteriorMean     = posteriorVariance * (priorMean/priorVariance + observationMean/observationVariance)
//
// Updates do not commute exactly in floating point, so callers must apply
// them in review arrival order.
package rating

import (
	"fmt"
	"math"

	"github.com/okian/admit/internal/domain/errs"
	"github.com/okian/admit/internal/domain/model"
)

// Default observation table.
const (
	defaultTopMean             = 1.0
	defaultMiddleMean          = 0.0
	defaultBottomMean          = -1.0
	defaultObservationVariance = 0.5
)

// Observation is the evidence a single grade contributes.
type Observation struct {
	Mean     float64
	Variance float64
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithObservation sets the observation for one grade. Unknown grades and
// non-positive or non-finite variances are ignored.
func WithObservation(g model.Grade, mean, variance float64) Option {
	return func(e *Engine) {
		if !g.Valid() || !finite(mean) || !finite(variance) || variance <= 0 {
			return
		}
		e.table[g] = Observation{Mean: mean, Variance: variance}
	}
}

// WithObservationVariance sets the reviewer noise for every grade.
func WithObservationVariance(variance float64) Option {
	return func(e *Engine) {
		if !finite(variance) || variance <= 0 {
			return
		}
		for g, obs := range e.table {
			obs.Variance = variance
			e.table[g] = obs
		}
	}
}

// WithObservationMeans sets the observation means for top, middle and bottom.
func WithObservationMeans(top, middle, bottom float64) Option {
	return func(e *Engine) {
		for g, mean := range map[model.Grade]float64{
			model.GradeTop:    top,
			model.GradeMiddle: middle,
			model.GradeBottom: bottom,
		} {
			if !finite(mean) {
				continue
			}
			obs := e.table[g]
			obs.Mean = mean
			e.table[g] = obs
		}
	}
}

// Rater updates beliefs from grades.
type Rater interface {
	Update(prior model.Belief, g model.Grade) (model.Belief, error)
}

// Engine is a stateless Rater backed by a grade -> observation table.
type Engine struct {
	table map[model.Grade]Observation
}

// New creates an Engine with the default table, then applies opts.
func New(opts ...Option) *Engine {
	e := &Engine{
		table: map[model.Grade]Observation{
			model.GradeTop:    {Mean: defaultTopMean, Variance: defaultObservationVariance},
			model.GradeMiddle: {Mean: defaultMiddleMean, Variance: defaultObservationVariance},
			model.GradeBottom: {Mean: defaultBottomMean, Variance: defaultObservationVariance},
		},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Observation returns the configured evidence for g.
func (e *Engine) Observation(g model.Grade) (Observation, error) {
	obs, ok := e.table[g]
	if !ok {
		return Observation{}, fmt.Errorf("%w: %q", errs.ErrInvalidGrade, string(g))
	}
	return obs, nil
}

// Update folds one grade into prior and returns the posterior. The posterior
// variance is always strictly below the prior variance.
func (e *Engine) Update(prior model.Belief, g model.Grade) (model.Belief, error) {
	obs, err := e.Observation(g)
	if err != nil {
		return model.Belief{}, err
	}
	if !finite(prior.SigmaSquared) || prior.SigmaSquared <= 0 {
		return model.Belief{}, fmt.Errorf("%w: got %v", errs.ErrDegenerateVariance, prior.SigmaSquared)
	}
	if !finite(prior.Mu) {
		return model.Belief{}, fmt.Errorf("%w: prior mean %v", errs.ErrDegenerateVariance, prior.Mu)
	}

	variance := 1 / (1/prior.SigmaSquared + 1/obs.Variance)
	mean := variance * (prior.Mu/prior.SigmaSquared + obs.Mean/obs.Variance)

	// When the observation is negligible next to the prior, rounding can
	// return the prior variance unchanged.
	if variance >= prior.SigmaSquared {
		variance = math.Nextafter(prior.SigmaSquared, 0)
	}

	return model.Belief{Mu: mean, SigmaSquared: variance}, nil
}

// Replay applies grades to prior in order.
func (e *Engine) Replay(prior model.Belief, grades []model.Grade) (model.Belief, error) {
	b := prior
	for i, g := range grades {
		next, err := e.Update(b, g)
		if err != nil {
			return model.Belief{}, fmt.Errorf("grade %d: %w", i, err)
		}
		b = next
	}
	return b, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
