package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/admit/internal/adapters/repository"
	"github.com/okian/admit/internal/adapters/repository/memory"
	"github.com/okian/admit/internal/adapters/repository/storetest"
	"github.com/okian/admit/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func newStore(t *testing.T) repository.Store {
	return memory.New(context.Background(), memory.WithSeed(42), memory.WithMetricsUpdateInterval(time.Hour))
}

func TestConformance(t *testing.T) {
	storetest.Run(t, newStore)
}

func TestOptimisticConcurrency(t *testing.T) {
	Convey("Given a stored registration", t, func() {
		s := memory.New(context.Background(), memory.WithSeed(1))
		Reset(func() { _ = s.Close() })

		base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		So(s.Atomic(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.CreateRegistration(ctx, storetest.Registration("r1", "h1", "a1", base))
			return err
		}), ShouldBeNil)

		Convey("When another unit commits between a read and the commit", func() {
			err := s.Atomic(context.Background(), func(ctx context.Context, tx repository.Tx) error {
				if _, err := tx.GetRegistration(ctx, "r1"); err != nil {
					return err
				}
				// Interleaved writer.
				if err := s.Atomic(ctx, func(ctx context.Context, inner repository.Tx) error {
					reg, err := inner.GetRegistration(ctx, "r1")
					if err != nil {
						return err
					}
					reg.AssignedCount++
					_, err = inner.UpdateRegistration(ctx, reg)
					return err
				}); err != nil {
					return err
				}
				return tx.AppendEvent(ctx, model.Event{EventID: "e", RegistrationID: "r1"})
			})

			Convey("Then the outer unit fails with a concurrency conflict and writes nothing", func() {
				So(errors.Is(err, repository.ErrConcurrencyConflict), ShouldBeTrue)

				var events []model.Event
				So(s.Atomic(context.Background(), func(ctx context.Context, tx repository.Tx) error {
					var err error
					events, err = tx.ListEvents(ctx, "r1")
					return err
				}), ShouldBeNil)
				So(events, ShouldBeEmpty)
			})
		})

		Convey("When many goroutines increment through Retry", func() {
			const workers = 16
			var conflicts atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = repository.Retry(context.Background(), 100, func(ctx context.Context) error {
						err := s.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
							reg, err := tx.GetRegistration(ctx, "r1")
							if err != nil {
								return err
							}
							reg.AssignedCount++
							_, err = tx.UpdateRegistration(ctx, reg)
							return err
						})
						if errors.Is(err, repository.ErrConcurrencyConflict) {
							conflicts.Add(1)
						}
						return err
					})
				}()
			}
			wg.Wait()

			Convey("Then no increment is lost", func() {
				var reg model.Registration
				So(s.Atomic(context.Background(), func(ctx context.Context, tx repository.Tx) error {
					var err error
					reg, err = tx.GetRegistration(ctx, "r1")
					return err
				}), ShouldBeNil)
				So(reg.AssignedCount, ShouldEqual, workers)
				So(reg.Version, ShouldEqual, workers+1)
			})
		})

		Convey("When two units create the same review concurrently", func() {
			start := make(chan struct{})
			results := make(chan error, 2)
			for i := 0; i < 2; i++ {
				go func(i int) {
					<-start
					results <- s.Atomic(context.Background(), func(ctx context.Context, tx repository.Tx) error {
						_, err := tx.CreateReview(ctx, model.Review{
							ID: fmt.Sprintf("rv%d", i), RegistrationID: "r1", ReviewerID: "same", Grade: model.GradeTop, CreatedAt: base,
						})
						return err
					})
				}(i)
			}
			close(start)
			first, second := <-results, <-results

			Convey("Then exactly one commits", func() {
				okCount := 0
				for _, err := range []error{first, second} {
					if err == nil {
						okCount++
					} else {
						So(errors.Is(err, repository.ErrDuplicateKey), ShouldBeTrue)
					}
				}
				So(okCount, ShouldEqual, 1)
			})
		})

		Convey("When the store is closed", func() {
			So(s.Close(), ShouldBeNil)
			So(s.Close(), ShouldBeNil)
			err := s.Atomic(context.Background(), func(ctx context.Context, tx repository.Tx) error {
				return tx.AppendEvent(ctx, model.Event{EventID: "late"})
			})

			Convey("Then commits fail", func() {
				So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
			})
		})
	})
}

func TestName(t *testing.T) {
	s := memory.New(context.Background())
	defer s.Close()
	if s.Name() != "memory" {
		t.Errorf("unexpected name %q", s.Name())
	}
}
