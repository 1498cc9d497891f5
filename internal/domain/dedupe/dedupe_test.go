package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/okian/admit/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestWindow(t *testing.T) {
	Convey("Given a window of three ids", t, func() {
		ctx := context.Background()
		w := dedupe.New(dedupe.WithMaxSize(3))

		Convey("When an id is recorded twice", func() {
			first := w.SeenAndRecord(ctx, "e1")
			second := w.SeenAndRecord(ctx, "e1")

			Convey("Then only the second call reports it as seen", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(w.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a fourth id arrives", func() {
			for _, id := range []string{"e1", "e2", "e3", "e4"} {
				w.SeenAndRecord(ctx, id)
			}

			Convey("Then the oldest is evicted", func() {
				So(w.Size(), ShouldEqual, 3)
				So(w.SeenAndRecord(ctx, "e4"), ShouldBeTrue)
				So(w.SeenAndRecord(ctx, "e2"), ShouldBeTrue)
				So(w.SeenAndRecord(ctx, "e1"), ShouldBeFalse)
			})
		})

		Convey("When an id is forgotten", func() {
			w.SeenAndRecord(ctx, "e1")
			w.SeenAndRecord(ctx, "e2")
			w.Forget(ctx, "e1")
			w.Forget(ctx, "missing")

			Convey("Then it counts as new again", func() {
				So(w.Size(), ShouldEqual, 1)
				So(w.SeenAndRecord(ctx, "e1"), ShouldBeFalse)
			})
		})
	})

	Convey("Given an unbounded window", t, func() {
		ctx := context.Background()
		w := dedupe.New(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			w.SeenAndRecord(ctx, fmt.Sprintf("e%d", i))
		}
		So(w.Size(), ShouldEqual, 1000)
		So(w.SeenAndRecord(ctx, "e0"), ShouldBeTrue)
	})

	Convey("Given many goroutines racing on the same ids", t, func() {
		ctx := context.Background()
		w := dedupe.New()
		var fresh atomic.Int64
		var wg sync.WaitGroup
		for g := 0; g < 16; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					if !w.SeenAndRecord(ctx, fmt.Sprintf("e%d", i)) {
						fresh.Add(1)
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then every id is new exactly once", func() {
			So(fresh.Load(), ShouldEqual, 100)
			So(w.Size(), ShouldEqual, 100)
		})
	})
}
