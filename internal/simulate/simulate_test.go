package simulate

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/admit/internal/adapters/http/api"
	service "github.com/okian/admit/internal/app"
	"github.com/okian/admit/internal/config"
	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/internal/domain/types"
	"github.com/okian/admit/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithLevel("error")); err != nil {
		panic(err)
	}
}

func startService() *httptest.Server {
	cfg := config.New()
	cfg.WorkerCount = 2
	cfg.ExpirySweepInterval = 0

	svc := service.New(service.WithConfig(cfg), service.WithLogger(logger.NewNop()))
	So(svc.Start(context.Background()), ShouldBeNil)
	Reset(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc, svc, api.WithLogger(logger.NewNop())).Register(context.Background(), mux)
	srv := httptest.NewServer(mux)
	Reset(srv.Close)
	return srv
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		srv := startService()
		cfg := &Config{
			BaseURL:         srv.URL,
			Applicants:      30,
			Reviewers:       5,
			ReviewsRequired: 3,
			Noise:           0.2,
			Seed:            42,
			TopN:            10,
			Accept:          3,
			Timeout:         5 * time.Second,
		}
		var out bytes.Buffer

		Convey("When a simulation runs", func() {
			stats, err := Run(context.Background(), cfg, &out)

			Convey("Then every invariant holds", func() {
				So(err, ShouldBeNil)
				So(stats.Seeded, ShouldEqual, 30)
				So(stats.Graded, ShouldEqual, 30)
				So(stats.Reviews, ShouldEqual, 90)
				So(stats.Assignments, ShouldEqual, 90)
				So(stats.DuplicateRejected, ShouldEqual, 90/resubmitEvery)
				So(stats.Accepted, ShouldEqual, 3)
				So(stats.Failures, ShouldEqual, 0)
			})

			Convey("Then the report shows the queue", func() {
				So(out.String(), ShouldContainSubstring, "Acceptance queue for "+cfg.HackathonID)
				So(out.String(), ShouldContainSubstring, "All invariants hold")
			})

			Convey("Then a second run in a new hackathon also passes", func() {
				cfg.HackathonID = ""
				_, err := Run(context.Background(), cfg, &bytes.Buffer{})
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestRunRejectsBadConfig(t *testing.T) {
	Convey("Given fewer reviewers than reviews required", t, func() {
		_, err := Run(context.Background(), &Config{BaseURL: "http://127.0.0.1:1", Applicants: 1, Reviewers: 2, ReviewsRequired: 3}, &bytes.Buffer{})
		So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
	})

	Convey("Given an unreachable service", t, func() {
		cfg := &Config{BaseURL: "http://127.0.0.1:1", Applicants: 1, Reviewers: 3, ReviewsRequired: 3, Timeout: time.Second}
		_, err := Run(context.Background(), cfg, &bytes.Buffer{})
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "health check")
	})
}

func TestGrader(t *testing.T) {
	Convey("Given a noiseless grader", t, func() {
		g := newGrader(7, 0)
		Convey("Then reviewers always see the true quality", func() {
			for _, q := range model.Grades {
				So(g.judge(q), ShouldEqual, q)
			}
		})
		Convey("Then every drawn quality is a valid grade", func() {
			for i := 0; i < 100; i++ {
				So(g.quality().Valid(), ShouldBeTrue)
			}
		})
	})

	Convey("Given a grader that always errs", t, func() {
		g := newGrader(7, 1)
		Convey("Then verdicts move exactly one grade", func() {
			So(g.judge(model.GradeTop), ShouldEqual, model.GradeMiddle)
			So(g.judge(model.GradeBottom), ShouldEqual, model.GradeMiddle)
			So(g.judge(model.GradeMiddle), ShouldBeIn, []model.Grade{model.GradeTop, model.GradeBottom})
		})
	})
}

func TestQueueOrderCheck(t *testing.T) {
	Convey("Given two queue entries", t, func() {
		now := time.Now()
		hi := types.QueueEntry{Mu: 1, SigmaSquared: 0.2, SubmittedAt: now}
		lo := types.QueueEntry{Mu: 0.5, SigmaSquared: 0.2, SubmittedAt: now}

		So(ranksAfter(hi, lo), ShouldBeFalse)
		So(ranksAfter(lo, hi), ShouldBeTrue)

		lo.Prioritized = true
		So(ranksAfter(hi, lo), ShouldBeTrue)

		early := types.QueueEntry{Mu: 1, SigmaSquared: 0.2, SubmittedAt: now.Add(-time.Minute)}
		So(ranksAfter(hi, early), ShouldBeTrue)
	})
}
