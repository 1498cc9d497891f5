package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	service "github.com/okian/admit/internal/app"
	"github.com/okian/admit/internal/config"
	"github.com/okian/admit/internal/domain/intake"
	"github.com/okian/admit/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithLevel("error")); err != nil {
		panic(err)
	}
}

func testConfig() *config.Config {
	cfg := config.New()
	cfg.WorkerCount = 2
	cfg.EventQueueSize = 1000
	cfg.DedupeSize = 500
	cfg.ExpirySweepInterval = 0
	return cfg
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it is not started", func() {
			So(svc, ShouldNotBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("Then operations fail until Start", func() {
			_, err := svc.CreateRegistration(context.Background(), intake.Application{HackathonID: "h1", ApplicantID: "a1"})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, _, err = svc.NextAssignment(context.Background(), "", "rev1")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithConfig(testConfig()), service.WithLogger(logger.NewNop()))
		defer svc.Stop()

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("And it should report the memory store", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["storeDriver"], ShouldEqual, config.DriverMemory)
				So(stats["registrations"], ShouldEqual, 0)
			})
		})

		Convey("When the configuration is invalid", func() {
			cfg := testConfig()
			cfg.ReviewsRequired = 0
			bad := service.New(service.WithConfig(cfg), service.WithLogger(logger.NewNop()))
			err := bad.Start(context.Background())

			Convey("Then Start refuses", func() {
				So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
			})
		})
	})
}

func TestService_Stop(t *testing.T) {
	Convey("Given a started service", t, func() {
		cfg := testConfig()
		cfg.ExpirySweepInterval = 10 * time.Millisecond
		svc := service.New(service.WithConfig(cfg), service.WithLogger(logger.NewNop()))
		So(svc.Start(context.Background()), ShouldBeNil)

		Convey("When stopping the service", func() {
			svc.Stop()

			Convey("Then it should be marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				_, err := svc.ExpireOverdueRsvps(context.Background())
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})

			Convey("And stopping again is harmless", func() {
				svc.Stop()
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})
}
