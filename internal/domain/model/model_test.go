package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/admit/internal/domain/errs"
	"github.com/okian/admit/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestGrade(t *testing.T) {
	convey.Convey("Given raw grade input", t, func() {
		convey.Convey("When it names a known grade in any case", func() {
			g, err := model.ParseGrade("  TOP ")
			convey.So(err, convey.ShouldBeNil)
			convey.So(g, convey.ShouldEqual, model.GradeTop)
		})

		convey.Convey("When it is unknown", func() {
			_, err := model.ParseGrade("excellent")
			convey.So(errors.Is(err, errs.ErrInvalidGrade), convey.ShouldBeTrue)
			convey.So(errors.Is(err, errs.ErrValidation), convey.ShouldBeTrue)
		})

		convey.Convey("Then strength orders top over middle over bottom", func() {
			convey.So(model.GradeTop.Strength(), convey.ShouldBeGreaterThan, model.GradeMiddle.Strength())
			convey.So(model.GradeMiddle.Strength(), convey.ShouldBeGreaterThan, model.GradeBottom.Strength())
			convey.So(model.Grade("").Strength(), convey.ShouldEqual, 0)
		})
	})
}

func TestApplicationTransitions(t *testing.T) {
	convey.Convey("Given the admission state machine", t, func() {
		legal := map[model.ApplicationStatus][]model.ApplicationStatus{
			model.StatusPending:    {model.StatusAccepted, model.StatusRejected, model.StatusWaitlisted},
			model.StatusAccepted:   {model.StatusConfirmed, model.StatusDeclined},
			model.StatusWaitlisted: {model.StatusAccepted, model.StatusRejected},
		}
		all := []model.ApplicationStatus{
			model.StatusPending, model.StatusAccepted, model.StatusRejected,
			model.StatusWaitlisted, model.StatusConfirmed, model.StatusDeclined,
		}

		convey.Convey("Then exactly the listed transitions are allowed", func() {
			for _, from := range all {
				for _, to := range all {
					want := false
					for _, next := range legal[from] {
						if next == to {
							want = true
						}
					}
					convey.So(model.CanTransition(from, to), convey.ShouldEqual, want)
				}
			}
		})

		convey.Convey("Then confirmed, rejected and declined are terminal", func() {
			convey.So(model.StatusConfirmed.Terminal(), convey.ShouldBeTrue)
			convey.So(model.StatusRejected.Terminal(), convey.ShouldBeTrue)
			convey.So(model.StatusDeclined.Terminal(), convey.ShouldBeTrue)
			convey.So(model.StatusWaitlisted.Terminal(), convey.ShouldBeFalse)
		})

		convey.Convey("Then unknown statuses fail to parse", func() {
			_, err := model.ParseApplicationStatus("maybe")
			convey.So(errors.Is(err, errs.ErrInvalidStatus), convey.ShouldBeTrue)
			st, err := model.ParseApplicationStatus("Waitlisted")
			convey.So(err, convey.ShouldBeNil)
			convey.So(st, convey.ShouldEqual, model.StatusWaitlisted)
		})
	})
}

func TestOrdering(t *testing.T) {
	convey.Convey("Given candidates for acceptance", t, func() {
		t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		mk := func(id string, prio bool, mu, sigma float64, at time.Time) model.Ranked {
			return model.Ranked{
				Registration: model.Registration{ID: id, SubmittedAt: at},
				Belief:       model.ApplicantBelief{Belief: model.Belief{Mu: mu, SigmaSquared: sigma}, Prioritized: prio},
			}
		}

		convey.Convey("Prioritized beats a higher mean", func() {
			convey.So(model.RanksBefore(mk("a", true, 0, 1, t0), mk("b", false, 5, 1, t0)), convey.ShouldBeTrue)
		})
		convey.Convey("Higher mean beats lower mean", func() {
			convey.So(model.RanksBefore(mk("a", false, 0.7, 1, t0), mk("b", false, 0.2, 0.1, t0)), convey.ShouldBeTrue)
		})
		convey.Convey("Lower variance breaks a mean tie", func() {
			convey.So(model.RanksBefore(mk("a", false, 0.5, 0.2, t0), mk("b", false, 0.5, 0.3, t0)), convey.ShouldBeTrue)
		})
		convey.Convey("Earlier submission then id break the rest", func() {
			convey.So(model.RanksBefore(mk("b", false, 0.5, 0.2, t0), mk("a", false, 0.5, 0.2, t0.Add(time.Second))), convey.ShouldBeTrue)
			convey.So(model.RanksBefore(mk("a", false, 0.5, 0.2, t0), mk("b", false, 0.5, 0.2, t0)), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given identifiers", t, func() {
		convey.So(model.IDLess("9", "10"), convey.ShouldBeTrue)
		convey.So(model.IDLess("10", "9"), convey.ShouldBeFalse)
		convey.So(model.IDLess("reg-10", "reg-9"), convey.ShouldBeTrue)
		convey.So(model.IDLess("01", "1"), convey.ShouldBeTrue)
		convey.So(model.IDLess("1", "01"), convey.ShouldBeFalse)
		convey.So(model.IDLess("10", "1a"), convey.ShouldBeTrue)
		convey.So(model.IDLess("1a", "9"), convey.ShouldBeFalse)
	})
}

func TestRsvpOverdue(t *testing.T) {
	convey.Convey("Given an accepted registration with a deadline", t, func() {
		deadline := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
		reg := model.Registration{ApplicationStatus: model.StatusAccepted, RsvpDeadline: &deadline}

		convey.So(reg.RsvpOverdue(deadline.Add(-time.Hour)), convey.ShouldBeFalse)
		convey.So(reg.RsvpOverdue(deadline), convey.ShouldBeFalse)
		convey.So(reg.RsvpOverdue(deadline.Add(time.Hour)), convey.ShouldBeTrue)

		answered := deadline.Add(-time.Hour)
		reg.RsvpAt = &answered
		convey.So(reg.RsvpOverdue(deadline.Add(time.Hour)), convey.ShouldBeFalse)
	})
}
