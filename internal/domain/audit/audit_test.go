package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/admit/internal/adapters/repository"
	"github.com/okian/admit/internal/adapters/repository/memory"
	"github.com/okian/admit/internal/domain/audit"
	"github.com/okian/admit/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type capture struct {
	got []model.Event
}

func (c *capture) Publish(_ context.Context, events ...model.Event) {
	c.got = append(c.got, events...)
}

func TestBatch(t *testing.T) {
	Convey("Given a batch used inside a unit of work", t, func() {
		ctx := context.Background()
		store := memory.New(ctx, memory.WithMetricsUpdateInterval(time.Hour))
		Reset(func() { _ = store.Close() })

		var batch audit.Batch
		err := store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
			batch.Reset()
			if err := batch.Append(ctx, tx, model.Event{Kind: model.EventReviewSubmitted, RegistrationID: "r1"}); err != nil {
				return err
			}
			return batch.Append(ctx, tx, model.Event{EventID: "fixed", Kind: model.EventRegistrationGraded, RegistrationID: "r1"})
		})
		So(err, ShouldBeNil)

		Convey("Then events get ids and are stored in order", func() {
			events := batch.Events()
			So(events, ShouldHaveLength, 2)
			So(events[0].EventID, ShouldNotBeEmpty)
			So(events[1].EventID, ShouldEqual, "fixed")

			var stored []model.Event
			So(store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
				var err error
				stored, err = tx.ListEvents(ctx, "r1")
				return err
			}), ShouldBeNil)
			So(stored, ShouldResemble, events)
		})

		Convey("Then flushing publishes once and empties the batch", func() {
			c := &capture{}
			batch.Flush(ctx, c)
			batch.Flush(ctx, c)
			So(c.got, ShouldHaveLength, 2)
			So(batch.Events(), ShouldBeEmpty)
		})

		Convey("Then a nil publisher is tolerated", func() {
			batch.Flush(ctx, nil)
			audit.Discard{}.Publish(ctx, model.Event{})
			So(batch.Events(), ShouldBeEmpty)
		})
	})
}
