package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/okian/admit/internal/domain/errs"
	. "github.com/smartystreets/goconvey/convey"
)

func TestKindOf(t *testing.T) {
	Convey("Given errors from every class", t, func() {
		Convey("Specific errors resolve to their kind", func() {
			So(errs.KindOf(errs.ErrInvalidGrade), ShouldEqual, errs.KindValidation)
			So(errs.KindOf(errs.ErrDegenerateVariance), ShouldEqual, errs.KindValidation)
			So(errs.KindOf(errs.ErrDuplicateReview), ShouldEqual, errs.KindConflict)
			So(errs.KindOf(errs.ErrInvalidTransition), ShouldEqual, errs.KindConflict)
			So(errs.KindOf(errs.ErrRegistrationNotFound), ShouldEqual, errs.KindNotFound)
			So(errs.KindOf(errs.ErrConcurrencyConflict), ShouldEqual, errs.KindConcurrencyConflict)
		})

		Convey("Unknown errors are internal and nil has no kind", func() {
			So(errs.KindOf(errors.New("boom")), ShouldEqual, errs.KindInternal)
			So(errs.KindOf(nil), ShouldEqual, errs.Kind(""))
		})

		Convey("Wrapping keeps both the precise error and its class", func() {
			err := errs.Wrap("workflow.submit_review", fmt.Errorf("pair r1/alice: %w", errs.ErrDuplicateReview))
			So(errors.Is(err, errs.ErrDuplicateReview), ShouldBeTrue)
			So(errors.Is(err, errs.ErrConflict), ShouldBeTrue)
			So(err.Error(), ShouldStartWith, "workflow.submit_review: ")
		})

		Convey("WrapKind marks a foreign cause", func() {
			cause := errors.New("unexpected EOF")
			err := errs.WrapKind("api.post_review", errs.ErrValidation, cause)
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(errs.Wrap("noop", nil), ShouldBeNil)
		})
	})
}
