package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/okian/admit/internal/adapters/repository"
	"github.com/okian/admit/internal/adapters/repository/storetest"
	"github.com/okian/admit/internal/domain/errs"
	"github.com/okian/admit/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
	"gorm.io/gorm"
)

// dsnEnv names the database used by the conformance suite. The suite
// truncates every table it owns.
const dsnEnv = "ADMIT_TEST_POSTGRES_DSN"

func TestClassify(t *testing.T) {
	Convey("Given driver errors", t, func() {
		Convey("A unique violation becomes a duplicate key", func() {
			err := mapError(fmt.Errorf("insert: %w", &pgconn.PgError{Code: codeUniqueViolation}))
			So(errors.Is(err, repository.ErrDuplicateKey), ShouldBeTrue)
			So(errs.KindOf(err), ShouldEqual, errs.KindConflict)
		})

		Convey("Serialization failures and deadlocks become concurrency conflicts", func() {
			for _, code := range []string{codeSerializationFailure, codeDeadlockDetected} {
				err := mapError(&pgconn.PgError{Code: code})
				So(errors.Is(err, repository.ErrConcurrencyConflict), ShouldBeTrue)
			}
		})

		Convey("A missing record becomes not found", func() {
			So(mapError(gorm.ErrRecordNotFound), ShouldEqual, repository.ErrNotFound)
		})

		Convey("Sentinels pass through untouched", func() {
			mapped, ok := classify(repository.ErrConcurrencyConflict)
			So(ok, ShouldBeTrue)
			So(mapped, ShouldEqual, repository.ErrConcurrencyConflict)
		})

		Convey("Anything else is left alone and reported as unknown", func() {
			boom := errors.New("boom")
			mapped, ok := classify(boom)
			So(ok, ShouldBeFalse)
			So(mapped, ShouldEqual, boom)
			So(mapError(nil), ShouldBeNil)
		})
	})
}

func TestOrdering(t *testing.T) {
	Convey("The id ordering expression puts decimal ids first", t, func() {
		expr := idOrder("r.id")
		So(strings.HasPrefix(expr, "(r.id !~ '^[0-9]+$')"), ShouldBeTrue)
		So(expr, ShouldContainSubstring, `ltrim(r.id, '0')`)
		So(strings.HasSuffix(expr, `r.id COLLATE "C"`), ShouldBeTrue)
	})

	Convey("The rank order follows the acceptance tie-breaks", t, func() {
		keys := []string{"b.prioritized DESC", "b.mu DESC", "b.sigma_squared ASC", "r.submitted_at ASC"}
		last := -1
		for _, k := range keys {
			i := strings.Index(rankOrder, k)
			So(i, ShouldBeGreaterThan, last)
			last = i
		}
	})

	Convey("Only pending and waitlisted registrations wait for a decision", t, func() {
		So(awaitingStatuses(), ShouldResemble, []string{string(model.StatusPending), string(model.StatusWaitlisted)})
	})
}

func TestOpen(t *testing.T) {
	Convey("Open rejects an empty dsn", t, func() {
		_, err := Open(context.Background(), "  ")
		So(err, ShouldNotBeNil)
	})

	Convey("New rejects a nil handle", t, func() {
		_, err := New(nil)
		So(err, ShouldNotBeNil)
	})
}

func TestConformance(t *testing.T) {
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}

	ctx := context.Background()
	s, err := Open(ctx, dsn, WithAutoMigrate(true))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	storetest.Run(t, func(t *testing.T) repository.Store {
		err := s.db.WithContext(ctx).Exec(
			"TRUNCATE registrations, reviews, review_assignments, applicant_beliefs, reviewer_stats, registration_events RESTART IDENTITY",
		).Error
		if err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return unclosable{s}
	})
}

// unclosable keeps the shared pool open across conformance sections.
type unclosable struct {
	*Store
}

func (unclosable) Close() error { return nil }
