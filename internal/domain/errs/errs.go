// Package errs defines the error taxonomy shared by the review and
// admission engine.
//
// Every error returned by a domain operation belongs to exactly one kind:
// validation, conflict, not found or concurrency conflict. Specific errors
// wrap their kind, so callers can match either the precise condition
// (errors.Is(err, ErrDuplicateReview)) or the broad class
// (errors.Is(err, ErrConflict)).
package errs

import (
	"errors"
	"fmt"
)

// Kind names an error class. The string form is used as a stable API code.
type Kind string

// Error kinds.
const (
	KindValidation          Kind = "validation_error"
	KindConflict            Kind = "conflict"
	KindNotFound            Kind = "not_found"
	KindConcurrencyConflict Kind = "concurrency_conflict"
	KindInternal            Kind = "internal_error"
)

// Kind sentinels.
var (
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// Validation errors. Rejected at the boundary, never persisted.
var (
	ErrInvalidGrade       = fmt.Errorf("%w: invalid grade", ErrValidation)
	ErrInvalidStatus      = fmt.Errorf("%w: invalid application status", ErrValidation)
	ErrDegenerateVariance = fmt.Errorf("%w: prior variance must be positive and finite", ErrValidation)
	ErrMissingIdentifier  = fmt.Errorf("%w: missing identifier", ErrValidation)
	ErrInvalidLimit       = fmt.Errorf("%w: invalid limit", ErrValidation)
)

// Conflict errors. The operation was rejected without partial state.
var (
	ErrDuplicateReview           = fmt.Errorf("%w: review already exists for registration and reviewer", ErrConflict)
	ErrRegistrationAlreadyGraded = fmt.Errorf("%w: registration already graded", ErrConflict)
	ErrInvalidTransition         = fmt.Errorf("%w: invalid application status transition", ErrConflict)
	ErrRsvpDeadlinePassed        = fmt.Errorf("%w: rsvp deadline has passed", ErrConflict)
	ErrInsufficientReviews       = fmt.Errorf("%w: not enough reviews for consensus", ErrConflict)
	ErrDuplicateRegistration     = fmt.Errorf("%w: registration already exists", ErrConflict)
)

// Not found errors.
var (
	ErrRegistrationNotFound = fmt.Errorf("registration %w", ErrNotFound)
	ErrBeliefNotFound       = fmt.Errorf("applicant belief %w", ErrNotFound)
	ErrReviewerNotFound     = fmt.Errorf("reviewer %w", ErrNotFound)
)

// OpError records the operation that failed.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// Wrap annotates err with op. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}

// WrapKind annotates cause with op and marks it with kind, keeping both in
// the chain.
func WrapKind(op string, kind, cause error) error {
	if cause == nil {
		return &OpError{Op: op, Err: kind}
	}
	return &OpError{Op: op, Err: fmt.Errorf("%w: %w", kind, cause)}
}

// NewKind returns an error of the given kind for op.
func NewKind(op string, kind error) error {
	return &OpError{Op: op, Err: kind}
}

// KindOf classifies err. Unclassified errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConcurrencyConflict):
		return KindConcurrencyConflict
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
