package belief_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/admit/internal/adapters/repository"
	"github.com/okian/admit/internal/adapters/repository/memory"
	"github.com/okian/admit/internal/domain/belief"
	"github.com/okian/admit/internal/domain/errs"
	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestNew(t *testing.T) {
	Convey("Given prior settings", t, func() {
		Convey("A valid prior is accepted", func() {
			l, err := belief.New(rating.New(), belief.WithPrior(0.5, 2))
			So(err, ShouldBeNil)
			So(l.Prior(), ShouldResemble, model.Belief{Mu: 0.5, SigmaSquared: 2})
		})

		Convey("A degenerate prior is rejected", func() {
			for _, v := range []float64{0, -1, math.NaN(), math.Inf(1)} {
				_, err := belief.New(rating.New(), belief.WithPrior(0, v))
				So(errors.Is(err, errs.ErrDegenerateVariance), ShouldBeTrue)
			}
			_, err := belief.New(rating.New(), belief.WithPrior(math.Inf(-1), 1))
			So(errors.Is(err, errs.ErrDegenerateVariance), ShouldBeTrue)
		})

		Convey("A rater is required", func() {
			_, err := belief.New(nil)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestLedger(t *testing.T) {
	Convey("Given a ledger over an empty store", t, func() {
		ctx := context.Background()
		store := memory.New(ctx, memory.WithMetricsUpdateInterval(time.Hour))
		Reset(func() { _ = store.Close() })

		l, err := belief.New(
			rating.New(rating.WithObservation(model.GradeTop, 1, 0.5)),
			belief.WithPrior(0, 1),
			belief.WithClock(func() time.Time { return now }),
		)
		So(err, ShouldBeNil)
		key := model.BeliefKey{HackathonID: "h1", ApplicantID: "a1"}

		run := func(fn func(ctx context.Context, tx repository.Tx) error) error {
			return store.Atomic(ctx, fn)
		}

		Convey("When a grade is observed for a new applicant", func() {
			var b model.ApplicantBelief
			So(run(func(ctx context.Context, tx repository.Tx) error {
				var err error
				b, err = l.Observe(ctx, tx, key, model.GradeTop)
				return err
			}), ShouldBeNil)

			Convey("Then the belief starts from the prior and takes one update", func() {
				So(b.SigmaSquared, ShouldAlmostEqual, 1.0/3.0, 1e-12)
				So(b.Mu, ShouldAlmostEqual, 2.0/3.0, 1e-12)
				So(b.ReviewCount, ShouldEqual, 1)
				So(b.UpdatedAt, ShouldEqual, now)
				So(b.Prioritized, ShouldBeFalse)
			})

			Convey("Then a reset returns it to the prior and keeps the flag", func() {
				So(run(func(ctx context.Context, tx repository.Tx) error {
					_, _, err := l.SetPrioritized(ctx, tx, key, true)
					return err
				}), ShouldBeNil)

				var reset model.ApplicantBelief
				So(run(func(ctx context.Context, tx repository.Tx) error {
					var err error
					reset, err = l.Reset(ctx, tx, key)
					return err
				}), ShouldBeNil)
				So(reset.Belief, ShouldResemble, model.Belief{Mu: 0, SigmaSquared: 1})
				So(reset.ReviewCount, ShouldEqual, 0)
				So(reset.Prioritized, ShouldBeTrue)
			})
		})

		Convey("When an unknown belief is reset", func() {
			err := run(func(ctx context.Context, tx repository.Tx) error {
				_, err := l.Reset(ctx, tx, key)
				return err
			})

			Convey("Then it is not found", func() {
				So(errors.Is(err, errs.ErrBeliefNotFound), ShouldBeTrue)
			})
		})

		Convey("When the priority flag is set twice", func() {
			var first, second bool
			So(run(func(ctx context.Context, tx repository.Tx) error {
				var err error
				_, first, err = l.SetPrioritized(ctx, tx, key, true)
				return err
			}), ShouldBeNil)
			var b model.ApplicantBelief
			So(run(func(ctx context.Context, tx repository.Tx) error {
				var err error
				b, second, err = l.SetPrioritized(ctx, tx, key, true)
				return err
			}), ShouldBeNil)

			Convey("Then only the first call changes it and the belief is untouched", func() {
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				So(b.Prioritized, ShouldBeTrue)
				So(b.Belief, ShouldResemble, l.Prior())
			})
		})

		Convey("When an invalid grade is observed", func() {
			err := run(func(ctx context.Context, tx repository.Tx) error {
				_, err := l.Observe(ctx, tx, key, model.Grade("great"))
				return err
			})

			Convey("Then nothing is stored", func() {
				So(errors.Is(err, errs.ErrInvalidGrade), ShouldBeTrue)
				err := run(func(ctx context.Context, tx repository.Tx) error {
					_, err := l.Load(ctx, tx, key)
					return err
				})
				So(errors.Is(err, errs.ErrBeliefNotFound), ShouldBeTrue)
			})
		})
	})
}
