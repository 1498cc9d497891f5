package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	app "github.com/okian/admit/internal/app"
	"github.com/okian/admit/internal/config"
	"github.com/okian/admit/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithLevel("error")); err != nil {
		panic(err)
	}
}

func TestConfigFromEnvironment(t *testing.T) {
	convey.Convey("Given ADMIT_ environment overrides", t, func() {
		_ = os.Setenv("ADMIT_ADDR", ":8081")
		_ = os.Setenv("ADMIT_QUEUE_SIZE", "1000")
		_ = os.Setenv("ADMIT_WORKER_COUNT", "4")
		defer func() {
			_ = os.Unsetenv("ADMIT_ADDR")
			_ = os.Unsetenv("ADMIT_QUEUE_SIZE")
			_ = os.Unsetenv("ADMIT_WORKER_COUNT")
		}()

		convey.Convey("Then the loaded configuration carries them", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8081")
			convey.So(cfg.EventQueueSize, convey.ShouldEqual, 1000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
		})
	})
}

func TestRoutes(t *testing.T) {
	convey.Convey("Given a started service behind the full mux", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.WorkerCount = 1
		cfg.ExpirySweepInterval = 0

		svc := app.New(app.WithConfig(cfg))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		convey.Reset(svc.Stop)

		srv := httptest.NewServer(routes(ctx, svc))
		convey.Reset(srv.Close)

		get := func(path string) *http.Response {
			resp, err := http.Get(srv.URL + path)
			convey.So(err, convey.ShouldBeNil)
			return resp
		}

		convey.Convey("Then the landing page, docs and API are all routed", func() {
			for _, path := range []string{"/", "/api-docs", "/openapi.yaml", "/stats", "/healthz"} {
				resp := get(path)
				_ = resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("Then a registration can be created", func() {
			resp, err := http.Post(srv.URL+"/registrations", "application/json",
				strings.NewReader(`{"hackathon_id":"h1","applicant_id":"a1"}`))
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusCreated)
		})

		convey.Convey("Then unknown paths are 404", func() {
			resp := get("/leaderboard")
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the background metrics updaters", t, func() {
		convey.Convey("Then the system updater returns when its context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then the service updater tolerates an unstarted service", func() {
			svc := app.New()
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then a system update does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})
	})
}
