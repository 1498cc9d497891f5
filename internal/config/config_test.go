package config_test

import (
	"errors"
	"math"
	"runtime"
	"testing"
	"time"

	"github.com/okian/admit/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.ReviewsRequired, convey.ShouldEqual, 3)
			convey.So(cfg.PriorVariance, convey.ShouldEqual, 1.0)
			convey.So(cfg.TopObservationMean, convey.ShouldEqual, 1.0)
			convey.So(cfg.BottomObservationMean, convey.ShouldEqual, -1.0)
			convey.So(cfg.RsvpWindow, convey.ShouldEqual, 48*time.Hour)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with one bad field each", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":           func(c *config.Config) { c.Addr = " " },
			"unknown driver":       func(c *config.Config) { c.StoreDriver = "sqlite" },
			"postgres without dsn": func(c *config.Config) { c.StoreDriver = config.DriverPostgres },
			"zero reviews":         func(c *config.Config) { c.ReviewsRequired = 0 },
			"zero prior variance":  func(c *config.Config) { c.PriorVariance = 0 },
			"nan prior mean":       func(c *config.Config) { c.PriorMean = math.NaN() },
			"negative obs var":     func(c *config.Config) { c.MiddleObservationVariance = -0.5 },
			"infinite obs mean":    func(c *config.Config) { c.TopObservationMean = math.Inf(1) },
			"zero rsvp window":     func(c *config.Config) { c.RsvpWindow = 0 },
			"negative sweep":       func(c *config.Config) { c.ExpirySweepInterval = -time.Second },
			"zero retries":         func(c *config.Config) { c.MaxTxRetries = 0 },
			"zero workers":         func(c *config.Config) { c.WorkerCount = 0 },
			"zero queue":           func(c *config.Config) { c.EventQueueSize = 0 },
			"zero queue limit":     func(c *config.Config) { c.MaxQueueLimit = 0 },
		}
		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			if err == nil {
				t.Errorf("%s: expected an error", name)
			}
		}
	})

	convey.Convey("Given a postgres config with a dsn and no sweeper", t, func() {
		cfg := config.New()
		cfg.StoreDriver = config.DriverPostgres
		cfg.PostgresDSN = "postgres://localhost/admit"
		cfg.ExpirySweepInterval = 0
		convey.So(cfg.Validate(), convey.ShouldBeNil)
	})
}
