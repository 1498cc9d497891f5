package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/admit/internal/adapters/mq/queue"
	"github.com/okian/admit/internal/adapters/mq/worker"
	"github.com/okian/admit/internal/domain/dedupe"
	"github.com/okian/admit/internal/domain/model"
	logging "github.com/okian/admit/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logging.Init(logging.WithLevel("error")); err != nil {
		panic(err)
	}
}

type recorder struct {
	mu   sync.Mutex
	got  map[string]int
	fail map[string]error
}

func newRecorder() *recorder {
	return &recorder{got: make(map[string]int), fail: make(map[string]error)}
}

func (r *recorder) Notify(_ context.Context, e model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.fail[e.EventID]; ok {
		return err
	}
	r.got[e.EventID]++
	return nil
}

func (r *recorder) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.got[id]
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.got {
		n += c
	}
	return n
}

func ev(id string) model.Event {
	return model.Event{EventID: id, Kind: model.EventStatusChanged, RegistrationID: "r1", OccurredAt: time.Now()}
}

func TestPool(t *testing.T) {
	convey.Convey("Given a started pool with four workers", t, func() {
		ctx := context.Background()
		rec := newRecorder()
		q := queue.New(queue.WithCapacity(1000))
		pool := worker.NewPool(q, rec,
			worker.WithWorkerCount(4),
			worker.WithDeduper(dedupe.New(dedupe.WithMaxSize(100))),
			worker.WithLogger(logging.NewNop()),
		)
		pool.Start(ctx)

		convey.Convey("When events are published, some of them twice", func() {
			for i := 0; i < 50; i++ {
				pool.Publish(ctx, ev(fmt.Sprintf("e%d", i)))
			}
			pool.Publish(ctx, ev("e1"), ev("e2"), ev("e3"))
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then every id is delivered exactly once", func() {
				convey.So(rec.total(), convey.ShouldEqual, 50)
				convey.So(rec.count("e1"), convey.ShouldEqual, 1)
				convey.So(pool.Delivered(), convey.ShouldEqual, 50)
				convey.So(pool.Failed(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the notifier fails for one event", func() {
			rec.fail["bad"] = errors.New("smtp down")
			pool.Publish(ctx, ev("bad"), ev("good"))
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then the failure is counted and not retried", func() {
				convey.So(pool.Failed(), convey.ShouldEqual, 1)
				convey.So(pool.Delivered(), convey.ShouldEqual, 1)
				convey.So(rec.count("good"), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When publishing after shutdown", func() {
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
			pool.Publish(ctx, ev("late"))

			convey.Convey("Then the event is dropped without panicking", func() {
				convey.So(rec.count("late"), convey.ShouldEqual, 0)
				convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a pool whose notifier blocks", t, func() {
		release := make(chan struct{})
		q := queue.New(queue.WithCapacity(10))
		pool := worker.NewPool(q, worker.NotifierFunc(func(ctx context.Context, _ model.Event) error {
			<-release
			return nil
		}), worker.WithWorkerCount(1), worker.WithLogger(logging.NewNop()))
		pool.Start(context.Background())
		pool.Publish(context.Background(), ev("stuck"))

		convey.Convey("When shutdown runs out of time", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			err := pool.Shutdown(ctx)
			close(release)

			convey.Convey("Then it reports the timeout", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}

func TestLogNotifier(t *testing.T) {
	convey.Convey("The log notifier accepts every event", t, func() {
		n := worker.LogNotifier{Logger: logging.NewNop()}
		convey.So(n.Notify(context.Background(), ev("e1")), convey.ShouldBeNil)
		convey.So(worker.LogNotifier{}.Notify(context.Background(), ev("e2")), convey.ShouldBeNil)
	})
}
