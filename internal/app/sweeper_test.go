package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/admit/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type countingExpirer struct {
	calls atomic.Int64
	err   error
}

func (c *countingExpirer) ExpireOverdueRsvps(context.Context, time.Time) ([]string, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []string{"r1"}, nil
}

func TestSweeper(t *testing.T) {
	Convey("Given a sweeper on a short interval", t, func() {
		target := &countingExpirer{}
		w := newSweeper(target, 5*time.Millisecond, time.Now, logger.NewNop())

		Convey("When it runs for a while and stops", func() {
			w.start(context.Background())
			time.Sleep(60 * time.Millisecond)
			w.stop()
			after := target.calls.Load()

			Convey("Then it swept repeatedly and no longer sweeps", func() {
				So(after, ShouldBeGreaterThan, 1)
				time.Sleep(20 * time.Millisecond)
				So(target.calls.Load(), ShouldEqual, after)
			})
		})

		Convey("When the sweep fails", func() {
			target.err = errors.New("store down")
			w.start(context.Background())
			time.Sleep(30 * time.Millisecond)
			w.stop()

			Convey("Then the loop keeps going", func() {
				So(target.calls.Load(), ShouldBeGreaterThan, 1)
			})
		})
	})
}
