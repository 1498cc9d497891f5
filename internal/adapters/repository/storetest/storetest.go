// Package storetest is a conformance suite every repository.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/admit/internal/adapters/repository"
	"github.com/okian/admit/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) repository.Store

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Registration builds a fresh pending registration.
func Registration(id, hackathonID, applicantID string, submitted time.Time) model.Registration {
	return model.Registration{
		ID:                id,
		HackathonID:       hackathonID,
		ApplicantID:       applicantID,
		SubmittedAt:       submitted,
		ReviewStatus:      model.ReviewPending,
		ApplicationStatus: model.StatusPending,
		UpdatedAt:         submitted,
	}
}

func atomic(s repository.Store, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.Atomic(context.Background(), fn)
}

// Seed creates regs in one unit of work. Call it inside a Convey block.
func Seed(s repository.Store, regs ...model.Registration) []model.Registration {
	out := make([]model.Registration, 0, len(regs))
	err := atomic(s, func(ctx context.Context, tx repository.Tx) error {
		for _, r := range regs {
			created, err := tx.CreateRegistration(ctx, r)
			if err != nil {
				return err
			}
			out = append(out, created)
		}
		return nil
	})
	So(err, ShouldBeNil)
	return out
}

// Get reads one registration. Call it inside a Convey block.
func Get(s repository.Store, id string) model.Registration {
	var reg model.Registration
	So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
		var err error
		reg, err = tx.GetRegistration(ctx, id)
		return err
	}), ShouldBeNil)
	return reg
}

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	Convey("Given an empty store", t, func() {
		s := newStore(t)
		Reset(func() { _ = s.Close() })

		Convey("Registrations", func() { registrations(s) })
		Convey("Units of work", func() { unitsOfWork(s) })
		Convey("Queries", func() { queries(s) })
		Convey("Reviews and assignments", func() { reviews(s) })
		Convey("Beliefs", func() { beliefs(s) })
		Convey("Reviewer stats and events", func() { statsAndEvents(s) })
		Convey("Acceptance ranking", func() { ranking(s) })
	})
}

func registrations(s repository.Store) {
	created := Seed(s, Registration("r1", "h1", "a1", base))
	So(created[0].Version, ShouldEqual, 1)

	Convey("Get returns the stored record", func() {
		reg := Get(s, "r1")
		So(reg.ApplicantID, ShouldEqual, "a1")
		So(reg.ReviewStatus, ShouldEqual, model.ReviewPending)
		So(reg.SubmittedAt.Equal(base), ShouldBeTrue)
	})

	Convey("Unknown ids are not found", func() {
		err := atomic(s, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.GetRegistration(ctx, "nope")
			return err
		})
		So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
	})

	Convey("A duplicate id or applicant is rejected", func() {
		for _, r := range []model.Registration{
			Registration("r1", "h1", "a9", base),
			Registration("r9", "h1", "a1", base),
		} {
			err := atomic(s, func(ctx context.Context, tx repository.Tx) error {
				_, err := tx.CreateRegistration(ctx, r)
				return err
			})
			So(errors.Is(err, repository.ErrDuplicateKey), ShouldBeTrue)
		}
	})

	Convey("The same applicant may apply to another hackathon", func() {
		Seed(s, Registration("r2", "h2", "a1", base))
		So(Get(s, "r2").HackathonID, ShouldEqual, "h2")
	})

	Convey("Updates are conditional on the version", func() {
		reg := Get(s, "r1")
		reg.ReviewStatus = model.ReviewInReview

		var updated model.Registration
		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			var err error
			updated, err = tx.UpdateRegistration(ctx, reg)
			return err
		}), ShouldBeNil)
		So(updated.Version, ShouldEqual, 2)
		So(Get(s, "r1").ReviewStatus, ShouldEqual, model.ReviewInReview)

		Convey("A stale version conflicts", func() {
			reg.ReviewStatus = model.ReviewGraded
			err := atomic(s, func(ctx context.Context, tx repository.Tx) error {
				_, err := tx.UpdateRegistration(ctx, reg)
				return err
			})
			So(errors.Is(err, repository.ErrConcurrencyConflict), ShouldBeTrue)
			So(Get(s, "r1").ReviewStatus, ShouldEqual, model.ReviewInReview)
		})
	})

	Convey("Nullable timestamps round-trip", func() {
		reg := Get(s, "r1")
		deadline := base.Add(48 * time.Hour)
		reg.ApplicationStatus = model.StatusAccepted
		reg.AcceptedAt = &base
		reg.AcceptedBy = "admin"
		reg.RsvpDeadline = &deadline
		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.UpdateRegistration(ctx, reg)
			return err
		}), ShouldBeNil)

		got := Get(s, "r1")
		So(got.RsvpDeadline, ShouldNotBeNil)
		So(got.RsvpDeadline.Equal(deadline), ShouldBeTrue)
		So(got.RsvpAt, ShouldBeNil)
		So(got.AcceptedBy, ShouldEqual, "admin")
	})
}

func unitsOfWork(s repository.Store) {
	Convey("A failing unit of work leaves nothing behind", func() {
		boom := errors.New("boom")
		err := atomic(s, func(ctx context.Context, tx repository.Tx) error {
			if _, err := tx.CreateRegistration(ctx, Registration("r1", "h1", "a1", base)); err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, model.Event{EventID: "e1", RegistrationID: "r1"}); err != nil {
				return err
			}
			return boom
		})
		So(errors.Is(err, boom), ShouldBeTrue)

		err = atomic(s, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.GetRegistration(ctx, "r1")
			return err
		})
		So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
	})

	Convey("Reads observe the unit's own writes", func() {
		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			created, err := tx.CreateRegistration(ctx, Registration("r1", "h1", "a1", base))
			if err != nil {
				return err
			}
			created.ReviewStatus = model.ReviewInReview
			if _, err := tx.UpdateRegistration(ctx, created); err != nil {
				return err
			}
			got, err := tx.GetRegistration(ctx, "r1")
			if err != nil {
				return err
			}
			if got.ReviewStatus != model.ReviewInReview {
				return fmt.Errorf("unexpected status %s", got.ReviewStatus)
			}
			return nil
		}), ShouldBeNil)
	})

	Convey("A cancelled context does not run", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ran := false
		err := s.Atomic(ctx, func(context.Context, repository.Tx) error {
			ran = true
			return nil
		})
		So(err, ShouldNotBeNil)
		So(ran, ShouldBeFalse)
	})
}

func queries(s repository.Store) {
	Seed(s,
		Registration("3", "h1", "a3", base.Add(2*time.Minute)),
		Registration("10", "h1", "a10", base),
		Registration("9", "h1", "a9", base),
		Registration("x", "h2", "ax", base),
	)

	Convey("Submission order breaks ties by id", func() {
		regs, err := query(s, repository.RegistrationQuery{HackathonID: "h1"})
		So(err, ShouldBeNil)
		So(ids(regs), ShouldResemble, []string{"9", "10", "3"})
	})

	Convey("Assignment order prefers fewer reviews", func() {
		reg := Get(s, "9")
		reg.ReviewCount = 1
		reg.AssignedCount = 1
		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.UpdateRegistration(ctx, reg)
			return err
		}), ShouldBeNil)

		regs, err := query(s, repository.RegistrationQuery{HackathonID: "h1", Order: repository.OrderAssignment})
		So(err, ShouldBeNil)
		So(ids(regs), ShouldResemble, []string{"10", "3", "9"})

		regs, err = query(s, repository.RegistrationQuery{HackathonID: "h1", MaxAssigned: 1})
		So(err, ShouldBeNil)
		So(ids(regs), ShouldResemble, []string{"10", "3"})
	})

	Convey("ExcludeReviewer drops assigned and reviewed registrations", func() {
		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			if err := tx.CreateAssignment(ctx, model.Assignment{RegistrationID: "10", ReviewerID: "rev", AssignedAt: base}); err != nil {
				return err
			}
			_, err := tx.CreateReview(ctx, model.Review{ID: "rv1", RegistrationID: "3", ReviewerID: "rev", Grade: model.GradeTop, CreatedAt: base})
			return err
		}), ShouldBeNil)

		regs, err := query(s, repository.RegistrationQuery{HackathonID: "h1", ExcludeReviewer: "rev"})
		So(err, ShouldBeNil)
		So(ids(regs), ShouldResemble, []string{"9"})
	})

	Convey("Status and limit filters apply", func() {
		regs, err := query(s, repository.RegistrationQuery{
			ReviewStatuses:      []model.ReviewStatus{model.ReviewPending},
			ApplicationStatuses: []model.ApplicationStatus{model.StatusPending},
			Limit:               2,
		})
		So(err, ShouldBeNil)
		So(len(regs), ShouldEqual, 2)

		regs, err = query(s, repository.RegistrationQuery{ReviewStatuses: []model.ReviewStatus{model.ReviewGraded}})
		So(err, ShouldBeNil)
		So(regs, ShouldBeEmpty)

		regs, err = query(s, repository.RegistrationQuery{HackathonID: "h1", ApplicantID: "a10"})
		So(err, ShouldBeNil)
		So(ids(regs), ShouldResemble, []string{"10"})
	})

	Convey("Overdue RSVP filters apply", func() {
		reg := Get(s, "x")
		deadline := base.Add(time.Hour)
		reg.ApplicationStatus = model.StatusAccepted
		reg.RsvpDeadline = &deadline
		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.UpdateRegistration(ctx, reg)
			return err
		}), ShouldBeNil)

		before := base.Add(30 * time.Minute)
		after := base.Add(2 * time.Hour)
		q := repository.RegistrationQuery{ApplicationStatuses: []model.ApplicationStatus{model.StatusAccepted}, RsvpPending: true}

		q.RsvpDeadlineBefore = &before
		regs, err := query(s, q)
		So(err, ShouldBeNil)
		So(regs, ShouldBeEmpty)

		q.RsvpDeadlineBefore = &after
		regs, err = query(s, q)
		So(err, ShouldBeNil)
		So(ids(regs), ShouldResemble, []string{"x"})
	})
}

func reviews(s repository.Store) {
	Seed(s, Registration("r1", "h1", "a1", base))

	add := func(reviewer string, g model.Grade) error {
		return atomic(s, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.CreateReview(ctx, model.Review{
				ID: "rv-" + reviewer, RegistrationID: "r1", ReviewerID: reviewer, Grade: g, CreatedAt: base,
			})
			return err
		})
	}

	So(add("b", model.GradeMiddle), ShouldBeNil)
	So(add("a", model.GradeTop), ShouldBeNil)

	Convey("Reviews list in arrival order", func() {
		var list []model.Review
		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			var err error
			list, err = tx.ListReviews(ctx, "r1")
			return err
		}), ShouldBeNil)
		So(len(list), ShouldEqual, 2)
		So(list[0].ReviewerID, ShouldEqual, "b")
		So(list[1].ReviewerID, ShouldEqual, "a")
		So(list[0].Seq, ShouldBeLessThan, list[1].Seq)
	})

	Convey("A second review by the same reviewer is a duplicate", func() {
		So(errors.Is(add("a", model.GradeBottom), repository.ErrDuplicateKey), ShouldBeTrue)
	})

	Convey("FindReview locates a pair", func() {
		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			r, err := tx.FindReview(ctx, "r1", "a")
			if err != nil {
				return err
			}
			if r.Grade != model.GradeTop {
				return fmt.Errorf("grade %s", r.Grade)
			}
			_, err = tx.FindReview(ctx, "r1", "zz")
			if !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("expected not found, got %v", err)
			}
			return nil
		}), ShouldBeNil)
	})

	Convey("Assignments are unique per pair", func() {
		assign := func() error {
			return atomic(s, func(ctx context.Context, tx repository.Tx) error {
				return tx.CreateAssignment(ctx, model.Assignment{RegistrationID: "r1", ReviewerID: "c", AssignedAt: base})
			})
		}
		So(assign(), ShouldBeNil)
		So(errors.Is(assign(), repository.ErrDuplicateKey), ShouldBeTrue)

		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			has, err := tx.HasAssignment(ctx, "r1", "c")
			if err != nil || !has {
				return fmt.Errorf("assignment missing: %v", err)
			}
			return nil
		}), ShouldBeNil)
	})
}

func beliefs(s repository.Store) {
	key := model.BeliefKey{HackathonID: "h1", ApplicantID: "a1"}
	var created model.ApplicantBelief
	So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
		var err error
		created, err = tx.CreateBelief(ctx, model.ApplicantBelief{
			HackathonID: "h1", ApplicantID: "a1", Belief: model.Belief{Mu: 0, SigmaSquared: 1}, UpdatedAt: base,
		})
		return err
	}), ShouldBeNil)
	So(created.Version, ShouldEqual, 1)

	Convey("A second create is a conflict to retry", func() {
		err := atomic(s, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.CreateBelief(ctx, model.ApplicantBelief{HackathonID: "h1", ApplicantID: "a1", Belief: model.Belief{SigmaSquared: 1}})
			return err
		})
		So(errors.Is(err, repository.ErrConcurrencyConflict), ShouldBeTrue)
	})

	Convey("Updates bump the version and stale ones conflict", func() {
		next := created
		next.Mu, next.SigmaSquared, next.Prioritized, next.ReviewCount = 0.5, 0.25, true, 2
		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.UpdateBelief(ctx, next)
			return err
		}), ShouldBeNil)

		var got model.ApplicantBelief
		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			var err error
			got, err = tx.GetBelief(ctx, key)
			return err
		}), ShouldBeNil)
		So(got.Mu, ShouldEqual, 0.5)
		So(got.SigmaSquared, ShouldEqual, 0.25)
		So(got.Prioritized, ShouldBeTrue)
		So(got.ReviewCount, ShouldEqual, 2)
		So(got.Version, ShouldEqual, 2)

		err := atomic(s, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.UpdateBelief(ctx, next)
			return err
		})
		So(errors.Is(err, repository.ErrConcurrencyConflict), ShouldBeTrue)
	})

	Convey("Unknown beliefs are not found", func() {
		err := atomic(s, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.GetBelief(ctx, model.BeliefKey{HackathonID: "h1", ApplicantID: "zz"})
			return err
		})
		So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
	})
}

func statsAndEvents(s repository.Store) {
	Convey("Reviewer stats count increments", func() {
		err := atomic(s, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.GetReviewerStats(ctx, "rev")
			return err
		})
		So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

		for i := 0; i < 3; i++ {
			So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
				_, err := tx.IncrementReviewerStats(ctx, "rev", base.Add(time.Duration(i)*time.Minute))
				return err
			}), ShouldBeNil)
		}

		var st model.ReviewerStats
		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			var err error
			st, err = tx.GetReviewerStats(ctx, "rev")
			return err
		}), ShouldBeNil)
		So(st.TotalReviewed, ShouldEqual, 3)
		So(st.UpdatedAt.Equal(base.Add(2*time.Minute)), ShouldBeTrue)
	})

	Convey("Events list oldest first", func() {
		Seed(s, Registration("r1", "h1", "a1", base))
		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			for i, kind := range []model.EventKind{model.EventReviewSubmitted, model.EventRegistrationGraded} {
				if err := tx.AppendEvent(ctx, model.Event{
					EventID: fmt.Sprintf("e%d", i), Kind: kind, RegistrationID: "r1", HackathonID: "h1",
					ApplicantID: "a1", ActorID: "rev", OccurredAt: base.Add(time.Duration(i) * time.Second),
				}); err != nil {
					return err
				}
			}
			return nil
		}), ShouldBeNil)

		var events []model.Event
		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			var err error
			events, err = tx.ListEvents(ctx, "r1")
			return err
		}), ShouldBeNil)
		So(len(events), ShouldEqual, 2)
		So(events[0].Kind, ShouldEqual, model.EventReviewSubmitted)
		So(events[1].Kind, ShouldEqual, model.EventRegistrationGraded)
	})
}

func ranking(s repository.Store) {
	type cand struct {
		id          string
		mu, sigma   float64
		prioritized bool
		status      model.ApplicationStatus
		graded      bool
		submitted   time.Duration
	}
	cands := []cand{
		{id: "low", mu: -0.5, sigma: 0.2, status: model.StatusPending, graded: true},
		{id: "high", mu: 0.9, sigma: 0.3, status: model.StatusPending, graded: true},
		{id: "sure", mu: 0.9, sigma: 0.1, status: model.StatusWaitlisted, graded: true},
		{id: "vip", mu: -1, sigma: 0.3, prioritized: true, status: model.StatusPending, graded: true},
		{id: "early", mu: -0.5, sigma: 0.2, status: model.StatusPending, graded: true, submitted: -time.Hour},
		{id: "done", mu: 2, sigma: 0.1, status: model.StatusAccepted, graded: true},
		{id: "open", mu: 3, sigma: 0.1, status: model.StatusPending},
	}

	So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
		for _, c := range cands {
			reg := Registration(c.id, "h1", "app-"+c.id, base.Add(c.submitted))
			reg.ApplicationStatus = c.status
			if c.graded {
				reg.ReviewStatus = model.ReviewGraded
				reg.Grade = model.GradeMiddle
			}
			if _, err := tx.CreateRegistration(ctx, reg); err != nil {
				return err
			}
			if _, err := tx.CreateBelief(ctx, model.ApplicantBelief{
				HackathonID: "h1", ApplicantID: "app-" + c.id,
				Belief: model.Belief{Mu: c.mu, SigmaSquared: c.sigma}, Prioritized: c.prioritized, UpdatedAt: base,
			}); err != nil {
				return err
			}
		}
		return nil
	}), ShouldBeNil)

	rank := func(limit int) []string {
		var out []model.Ranked
		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			var err error
			out, err = tx.RankForAcceptance(ctx, "h1", limit)
			return err
		}), ShouldBeNil)
		names := make([]string, len(out))
		for i, r := range out {
			names[i] = r.Registration.ID
		}
		return names
	}

	Convey("Only graded registrations awaiting a decision are ranked, best first", func() {
		So(rank(10), ShouldResemble, []string{"vip", "sure", "high", "early", "low"})
		So(rank(2), ShouldResemble, []string{"vip", "sure"})
	})

	Convey("Positions follow the queue", func() {
		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			pos, err := tx.AcceptancePosition(ctx, "high")
			if err != nil {
				return err
			}
			if pos != 3 {
				return fmt.Errorf("position %d", pos)
			}
			if _, err := tx.AcceptancePosition(ctx, "open"); !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("expected not found, got %v", err)
			}
			return nil
		}), ShouldBeNil)
	})

	Convey("Belief and status changes reorder the queue", func() {
		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			b, err := tx.GetBelief(ctx, model.BeliefKey{HackathonID: "h1", ApplicantID: "app-low"})
			if err != nil {
				return err
			}
			b.Mu = 5
			if _, err := tx.UpdateBelief(ctx, b); err != nil {
				return err
			}
			reg, err := tx.GetRegistration(ctx, "sure")
			if err != nil {
				return err
			}
			reg.ApplicationStatus = model.StatusRejected
			_, err = tx.UpdateRegistration(ctx, reg)
			return err
		}), ShouldBeNil)

		So(rank(10), ShouldResemble, []string{"vip", "low", "high", "early"})
	})

	Convey("An invalid limit is rejected", func() {
		err := atomic(s, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.RankForAcceptance(ctx, "h1", 0)
			return err
		})
		So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
	})

	Convey("Summaries count by state", func() {
		var sum repository.Summary
		So(atomic(s, func(ctx context.Context, tx repository.Tx) error {
			var err error
			sum, err = tx.Summarize(ctx)
			return err
		}), ShouldBeNil)
		So(sum.Registrations, ShouldEqual, len(cands))
		So(sum.ByReviewStatus[model.ReviewGraded], ShouldEqual, 6)
		So(sum.ByApplication[model.StatusAccepted], ShouldEqual, 1)
		So(sum.AwaitingDecision, ShouldEqual, 5)
		So(sum.Beliefs, ShouldEqual, len(cands))
		So(sum.Prioritized, ShouldEqual, 1)
	})
}

func query(s repository.Store, q repository.RegistrationQuery) ([]model.Registration, error) {
	var out []model.Registration
	err := atomic(s, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.QueryRegistrations(ctx, q)
		return err
	})
	return out, err
}

func ids(regs []model.Registration) []string {
	out := make([]string, len(regs))
	for i, r := range regs {
		out[i] = r.ID
	}
	return out
}
