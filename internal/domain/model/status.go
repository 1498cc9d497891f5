// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"

	"github.com/okian/admit/internal/domain/errs"
)

// SystemActor identifies transitions made by the engine itself rather than
// by a reviewer or administrator.
const SystemActor = "system"

// Grade is a reviewer's qualitative verdict. The zero value means "no grade".
type Grade string

// Grades, best first.
const (
	GradeTop    Grade = "top"
	GradeMiddle Grade = "middle"
	GradeBottom Grade = "bottom"
)

// Grades lists every valid grade, best first.
var Grades = []Grade{GradeTop, GradeMiddle, GradeBottom}

// ParseGrade converts raw input into a Grade.
func ParseGrade(s string) (Grade, error) {
	g := Grade(strings.ToLower(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", fmt.Errorf("%w: %q", errs.ErrInvalidGrade, s)
	}
	return g, nil
}

// Valid reports whether g is one of the known grades.
func (g Grade) Valid() bool {
	switch g {
	case GradeTop, GradeMiddle, GradeBottom:
		return true
	default:
		return false
	}
}

// Strength orders grades: top > middle > bottom > unset.
func (g Grade) Strength() int {
	switch g {
	case GradeTop:
		return 3
	case GradeMiddle:
		return 2
	case GradeBottom:
		return 1
	default:
		return 0
	}
}

// ReviewStatus tracks a registration through review.
type ReviewStatus string

// Review states. Graded is terminal.
const (
	ReviewPending  ReviewStatus = "pending_review"
	ReviewInReview ReviewStatus = "in_review"
	ReviewGraded   ReviewStatus = "graded"
)

// Valid reports whether s is a known review status.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewPending, ReviewInReview, ReviewGraded:
		return true
	default:
		return false
	}
}

// Open reports whether the registration still accepts assignments and reviews.
func (s ReviewStatus) Open() bool {
	return s == ReviewPending || s == ReviewInReview
}

// ApplicationStatus tracks a registration through admission.
type ApplicationStatus string

// Admission states.
const (
	StatusPending    ApplicationStatus = "pending"
	StatusAccepted   ApplicationStatus = "accepted"
	StatusRejected   ApplicationStatus = "rejected"
	StatusWaitlisted ApplicationStatus = "waitlisted"
	StatusConfirmed  ApplicationStatus = "confirmed"
	StatusDeclined   ApplicationStatus = "declined"
)

// transitions is the complete admission state machine. States absent from
// the map, and empty entries, are terminal.
var transitions = map[ApplicationStatus][]ApplicationStatus{
	StatusPending:    {StatusAccepted, StatusRejected, StatusWaitlisted},
	StatusAccepted:   {StatusConfirmed, StatusDeclined},
	StatusWaitlisted: {StatusAccepted, StatusRejected},
	StatusConfirmed:  nil,
	StatusRejected:   nil,
	StatusDeclined:   nil,
}

// ParseApplicationStatus converts raw input into an ApplicationStatus.
func ParseApplicationStatus(s string) (ApplicationStatus, error) {
	st := ApplicationStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", errs.ErrInvalidStatus, s)
	}
	return st, nil
}

// Valid reports whether s is a known application status.
func (s ApplicationStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s ApplicationStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// AwaitingDecision reports whether s can still move to accepted.
func (s ApplicationStatus) AwaitingDecision() bool {
	return CanTransition(s, StatusAccepted)
}

// CanTransition reports whether from -> to is a legal admission transition.
func CanTransition(from, to ApplicationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the states reachable from s.
func NextStatuses(s ApplicationStatus) []ApplicationStatus {
	out := make([]ApplicationStatus, len(transitions[s]))
	copy(out, transitions[s])
	return out
}
