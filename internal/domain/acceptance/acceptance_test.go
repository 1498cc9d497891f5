package acceptance_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/admit/internal/adapters/repository"
	"github.com/okian/admit/internal/adapters/repository/memory"
	"github.com/okian/admit/internal/adapters/repository/storetest"
	"github.com/okian/admit/internal/domain/acceptance"
	"github.com/okian/admit/internal/domain/belief"
	"github.com/okian/admit/internal/domain/errs"
	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/internal/domain/rating"
	"github.com/okian/admit/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithLevel("error")); err != nil {
		panic(err)
	}
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store
	svc   *acceptance.Service
	clock time.Time
}

func newFixture() *fixture {
	f := &fixture{
		store: memory.New(context.Background(), memory.WithMetricsUpdateInterval(time.Hour)),
		clock: t0,
	}
	now := func() time.Time { return f.clock }
	ledger, err := belief.New(rating.New(), belief.WithPrior(0, 1), belief.WithClock(now))
	So(err, ShouldBeNil)
	f.svc = acceptance.New(f.store, ledger,
		acceptance.WithRsvpWindow(48*time.Hour),
		acceptance.WithClock(now),
		acceptance.WithLogger(logger.NewNop()),
	)
	return f
}

func (f *fixture) events(id string) []model.Event {
	var events []model.Event
	So(f.store.Atomic(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		events, err = tx.ListEvents(ctx, id)
		return err
	}), ShouldBeNil)
	return events
}

func TestDecide(t *testing.T) {
	Convey("Given a pending registration", t, func() {
		ctx := context.Background()
		f := newFixture()
		Reset(func() { _ = f.store.Close() })
		storetest.Seed(f.store, storetest.Registration("r1", "h1", "a1", t0.Add(-time.Hour)))

		Convey("When it is accepted", func() {
			reg, err := f.svc.Decide(ctx, "r1", model.StatusAccepted, "admin")

			Convey("Then the RSVP window opens", func() {
				So(err, ShouldBeNil)
				So(reg.ApplicationStatus, ShouldEqual, model.StatusAccepted)
				So(reg.AcceptedBy, ShouldEqual, "admin")
				So(*reg.AcceptedAt, ShouldEqual, t0)
				So(*reg.RsvpDeadline, ShouldEqual, t0.Add(48*time.Hour))
				So(reg.RsvpAt, ShouldBeNil)

				events := f.events("r1")
				So(events, ShouldHaveLength, 1)
				So(events[0].Kind, ShouldEqual, model.EventStatusChanged)
				So(events[0].From, ShouldEqual, "pending")
				So(events[0].To, ShouldEqual, "accepted")
			})

			Convey("Then confirming inside the window records the answer", func() {
				f.clock = t0.Add(24 * time.Hour)
				reg, err := f.svc.Decide(ctx, "r1", model.StatusConfirmed, "a1")
				So(err, ShouldBeNil)
				So(*reg.RsvpAt, ShouldEqual, f.clock)
				So(reg.ApplicationStatus.Terminal(), ShouldBeTrue)
			})

			Convey("Then confirming after the deadline fails but declining does not", func() {
				f.clock = t0.Add(49 * time.Hour)
				_, err := f.svc.Decide(ctx, "r1", model.StatusConfirmed, "a1")
				So(errors.Is(err, errs.ErrRsvpDeadlinePassed), ShouldBeTrue)

				reg, err := f.svc.Decide(ctx, "r1", model.StatusDeclined, "a1")
				So(err, ShouldBeNil)
				So(reg.ApplicationStatus, ShouldEqual, model.StatusDeclined)
			})
		})

		Convey("When the status is unknown", func() {
			_, err := f.svc.Decide(ctx, "r1", model.ApplicationStatus("maybe"), "admin")
			So(errors.Is(err, errs.ErrInvalidStatus), ShouldBeTrue)
		})

		Convey("When the registration is unknown", func() {
			_, err := f.svc.Decide(ctx, "nope", model.StatusAccepted, "admin")
			So(errors.Is(err, errs.ErrRegistrationNotFound), ShouldBeTrue)
		})
	})

	Convey("Given registrations in every admission state", t, func() {
		ctx := context.Background()
		f := newFixture()
		Reset(func() { _ = f.store.Close() })

		all := []model.ApplicationStatus{
			model.StatusPending, model.StatusAccepted, model.StatusRejected,
			model.StatusWaitlisted, model.StatusConfirmed, model.StatusDeclined,
		}

		Convey("Then exactly the legal transitions succeed", func() {
			n := 0
			for _, from := range all {
				for _, to := range all {
					n++
					id := fmt.Sprintf("r%d", n)
					reg := storetest.Registration(id, "h1", id, t0)
					reg.ApplicationStatus = from
					storetest.Seed(f.store, reg)

					_, err := f.svc.Decide(ctx, id, to, "admin")
					if model.CanTransition(from, to) {
						So(err, ShouldBeNil)
					} else {
						So(errors.Is(err, errs.ErrInvalidTransition), ShouldBeTrue)
						So(storetest.Get(f.store, id).ApplicationStatus, ShouldEqual, from)
					}
				}
			}
		})

		Convey("Then declined cannot become accepted", func() {
			reg := storetest.Registration("d", "h1", "ad", t0)
			reg.ApplicationStatus = model.StatusDeclined
			storetest.Seed(f.store, reg)
			_, err := f.svc.Decide(ctx, "d", model.StatusAccepted, "admin")
			So(errors.Is(err, errs.ErrInvalidTransition), ShouldBeTrue)
			So(errs.KindOf(err), ShouldEqual, errs.KindConflict)
		})
	})
}

func TestExpireOverdueRsvps(t *testing.T) {
	Convey("Given a registration accepted at t0 with a 48h window", t, func() {
		ctx := context.Background()
		f := newFixture()
		Reset(func() { _ = f.store.Close() })
		storetest.Seed(f.store, storetest.Registration("r1", "h1", "a1", t0.Add(-time.Hour)))
		_, err := f.svc.Decide(ctx, "r1", model.StatusAccepted, "admin")
		So(err, ShouldBeNil)

		Convey("When the sweep runs at 47h", func() {
			expired, err := f.svc.ExpireOverdueRsvps(ctx, t0.Add(47*time.Hour))

			Convey("Then nothing changes", func() {
				So(err, ShouldBeNil)
				So(expired, ShouldBeEmpty)
				So(storetest.Get(f.store, "r1").ApplicationStatus, ShouldEqual, model.StatusAccepted)
			})
		})

		Convey("When the sweep runs at 49h", func() {
			expired, err := f.svc.ExpireOverdueRsvps(ctx, t0.Add(49*time.Hour))

			Convey("Then the registration is declined by the system", func() {
				So(err, ShouldBeNil)
				So(expired, ShouldResemble, []string{"r1"})

				reg := storetest.Get(f.store, "r1")
				So(reg.ApplicationStatus, ShouldEqual, model.StatusDeclined)
				So(reg.RsvpAt, ShouldBeNil)
				So(reg.AcceptedBy, ShouldEqual, "admin")

				events := f.events("r1")
				last := events[len(events)-1]
				So(last.Kind, ShouldEqual, model.EventRsvpExpired)
				So(last.ActorID, ShouldEqual, model.SystemActor)
			})

			Convey("Then a second sweep is a no-op", func() {
				before := len(f.events("r1"))
				version := storetest.Get(f.store, "r1").Version

				expired, err := f.svc.ExpireOverdueRsvps(ctx, t0.Add(49*time.Hour))
				So(err, ShouldBeNil)
				So(expired, ShouldBeEmpty)
				So(f.events("r1"), ShouldHaveLength, before)
				So(storetest.Get(f.store, "r1").Version, ShouldEqual, version)
			})
		})

		Convey("When the applicant confirms between the scan and the expiry", func() {
			racing := storetest.NewHookStore(f.store)
			ledger, err := belief.New(rating.New(), belief.WithPrior(0, 1))
			So(err, ShouldBeNil)
			sweeper := acceptance.New(racing, ledger, acceptance.WithLogger(logger.NewNop()))

			racing.Arm(2, func() {
				f.clock = t0.Add(47 * time.Hour)
				_, err := f.svc.Decide(ctx, "r1", model.StatusConfirmed, "a1")
				So(err, ShouldBeNil)
			})
			expired, err := sweeper.ExpireOverdueRsvps(ctx, t0.Add(49*time.Hour))

			Convey("Then the sweep loses the race silently", func() {
				So(err, ShouldBeNil)
				So(expired, ShouldBeEmpty)
				So(racing.Units(), ShouldEqual, 3)

				reg := storetest.Get(f.store, "r1")
				So(reg.ApplicationStatus, ShouldEqual, model.StatusConfirmed)
				So(reg.RsvpAt, ShouldNotBeNil)
				for _, e := range f.events("r1") {
					So(e.Kind, ShouldNotEqual, model.EventRsvpExpired)
				}
			})
		})

		Convey("When the applicant confirmed before the sweep", func() {
			f.clock = t0.Add(47 * time.Hour)
			_, err := f.svc.Decide(ctx, "r1", model.StatusConfirmed, "a1")
			So(err, ShouldBeNil)
			expired, err := f.svc.ExpireOverdueRsvps(ctx, t0.Add(49*time.Hour))

			Convey("Then the sweep leaves it alone", func() {
				So(err, ShouldBeNil)
				So(expired, ShouldBeEmpty)
				So(storetest.Get(f.store, "r1").ApplicationStatus, ShouldEqual, model.StatusConfirmed)
			})
		})
	})
}

func seedGraded(store repository.Store, id, applicant string, mu, sigma float64, submitted time.Time) {
	reg := storetest.Registration(id, "h1", applicant, submitted)
	reg.ReviewStatus = model.ReviewGraded
	reg.Grade = model.GradeMiddle
	storetest.Seed(store, reg)
	So(store.Atomic(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.CreateBelief(ctx, model.ApplicantBelief{
			HackathonID: "h1",
			ApplicantID: applicant,
			Belief:      model.Belief{Mu: mu, SigmaSquared: sigma},
		})
		return err
	}), ShouldBeNil)
}

func TestNextToAccept(t *testing.T) {
	Convey("Given graded registrations with beliefs", t, func() {
		ctx := context.Background()
		f := newFixture()
		Reset(func() { _ = f.store.Close() })

		seedGraded(f.store, "strong", "a1", 0.9, 0.3, t0)
		seedGraded(f.store, "sure", "a2", 0.5, 0.1, t0)
		seedGraded(f.store, "unsure", "a3", 0.5, 0.4, t0)
		seedGraded(f.store, "weak", "a4", -0.2, 0.3, t0)
		storetest.Seed(f.store, storetest.Registration("ungraded", "h1", "a5", t0))

		ids := func(ranked []model.Ranked) []string {
			out := make([]string, len(ranked))
			for i, r := range ranked {
				out[i] = r.Registration.ID
			}
			return out
		}

		Convey("Then the queue ranks by mean, then certainty", func() {
			ranked, err := f.svc.NextToAccept(ctx, "h1", 10)
			So(err, ShouldBeNil)
			So(ids(ranked), ShouldResemble, []string{"strong", "sure", "unsure", "weak"})

			pos, err := f.svc.Position(ctx, "unsure")
			So(err, ShouldBeNil)
			So(pos, ShouldEqual, 3)
		})

		Convey("Then prioritizing an applicant moves it to the front", func() {
			b, err := f.svc.SetPrioritized(ctx, model.BeliefKey{HackathonID: "h1", ApplicantID: "a4"}, true, "admin")
			So(err, ShouldBeNil)
			So(b.Prioritized, ShouldBeTrue)

			ranked, err := f.svc.NextToAccept(ctx, "h1", 2)
			So(err, ShouldBeNil)
			So(ids(ranked), ShouldResemble, []string{"weak", "strong"})

			events := f.events("weak")
			So(events[len(events)-1].Kind, ShouldEqual, model.EventPriorityChanged)
		})

		Convey("Then decided registrations leave the queue", func() {
			_, err := f.svc.Decide(ctx, "strong", model.StatusAccepted, "admin")
			So(err, ShouldBeNil)
			_, err = f.svc.Decide(ctx, "sure", model.StatusWaitlisted, "admin")
			So(err, ShouldBeNil)

			ranked, err := f.svc.NextToAccept(ctx, "h1", 10)
			So(err, ShouldBeNil)
			So(ids(ranked), ShouldResemble, []string{"sure", "unsure", "weak"})

			_, err = f.svc.Position(ctx, "strong")
			So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
		})

		Convey("Then resetting a belief returns it to the prior", func() {
			b, err := f.svc.ResetBelief(ctx, model.BeliefKey{HackathonID: "h1", ApplicantID: "a1"}, "admin")
			So(err, ShouldBeNil)
			So(b.Belief, ShouldResemble, model.Belief{Mu: 0, SigmaSquared: 1})

			ranked, err := f.svc.NextToAccept(ctx, "h1", 10)
			So(err, ShouldBeNil)
			So(ids(ranked), ShouldResemble, []string{"sure", "unsure", "strong", "weak"})
		})

		Convey("Then bad limits and missing ids are rejected", func() {
			_, err := f.svc.NextToAccept(ctx, "h1", 0)
			So(errors.Is(err, errs.ErrInvalidLimit), ShouldBeTrue)
			_, err = f.svc.NextToAccept(ctx, "h1", acceptance.DefaultMaxLimit+1)
			So(errors.Is(err, errs.ErrInvalidLimit), ShouldBeTrue)
			_, err = f.svc.NextToAccept(ctx, "", 5)
			So(errors.Is(err, errs.ErrMissingIdentifier), ShouldBeTrue)
			_, err = f.svc.ResetBelief(ctx, model.BeliefKey{HackathonID: "h1", ApplicantID: "a5"}, "admin")
			So(errors.Is(err, errs.ErrBeliefNotFound), ShouldBeTrue)
		})

		Convey("Then applicants without a registration are unknown", func() {
			ghost := model.BeliefKey{HackathonID: "h1", ApplicantID: "ghost"}
			_, err := f.svc.SetPrioritized(ctx, ghost, true, "admin")
			So(errors.Is(err, errs.ErrRegistrationNotFound), ShouldBeTrue)
			So(errs.KindOf(err), ShouldEqual, errs.KindNotFound)
			_, err = f.svc.ResetBelief(ctx, ghost, "admin")
			So(errors.Is(err, errs.ErrRegistrationNotFound), ShouldBeTrue)

			So(f.store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
				_, err := tx.GetBelief(ctx, ghost)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				return nil
			}), ShouldBeNil)
			So(f.events(""), ShouldBeEmpty)
		})
	})
}
