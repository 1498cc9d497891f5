// Package repository defines the storage collaborator of the review engine:
// a transactional unit of work over registrations, reviews, assignments,
// beliefs, reviewer stats and the audit log.
package repository

import (
	"context"
	"time"

	"github.com/okian/admit/internal/domain/model"
)

// Store runs units of work.
type Store interface {
	// Atomic runs fn inside one all-or-nothing unit of work. If fn returns an
	// error nothing it wrote is visible. Commit may fail with
	// ErrConcurrencyConflict or ErrDuplicateKey.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Name identifies the implementation in logs and metrics.
	Name() string

	Close() error
}

// Tx is the view of the store inside a unit of work. Reads observe the unit's
// own writes.
type Tx interface {
	// GetRegistration returns ErrNotFound for unknown ids.
	GetRegistration(ctx context.Context, id string) (model.Registration, error)
	// CreateRegistration fails with ErrDuplicateKey when the id or the
	// (hackathon, applicant) pair exists. The returned record has Version 1.
	CreateRegistration(ctx context.Context, reg model.Registration) (model.Registration, error)
	// UpdateRegistration writes reg if the stored version equals reg.Version
	// and returns it with the next version.
	UpdateRegistration(ctx context.Context, reg model.Registration) (model.Registration, error)
	// QueryRegistrations filters, orders and limits registrations.
	QueryRegistrations(ctx context.Context, q RegistrationQuery) ([]model.Registration, error)
	// RankForAcceptance returns graded registrations still awaiting a
	// decision in a hackathon, best first.
	RankForAcceptance(ctx context.Context, hackathonID string, limit int) ([]model.Ranked, error)
	// AcceptancePosition returns the 1-based place of a registration in its
	// hackathon's acceptance queue, or ErrNotFound when it is not queued.
	AcceptancePosition(ctx context.Context, registrationID string) (int, error)
	// Summarize counts committed registrations by state.
	Summarize(ctx context.Context) (Summary, error)

	CreateAssignment(ctx context.Context, a model.Assignment) error
	HasAssignment(ctx context.Context, registrationID, reviewerID string) (bool, error)

	// CreateReview fails with ErrDuplicateKey for a second review by the same
	// reviewer. The store assigns Seq in arrival order.
	CreateReview(ctx context.Context, r model.Review) (model.Review, error)
	FindReview(ctx context.Context, registrationID, reviewerID string) (model.Review, error)
	// ListReviews returns reviews in arrival order.
	ListReviews(ctx context.Context, registrationID string) ([]model.Review, error)

	GetBelief(ctx context.Context, key model.BeliefKey) (model.ApplicantBelief, error)
	// CreateBelief fails with ErrConcurrencyConflict when another unit has
	// created the belief since it was read, so the caller re-runs and finds it.
	CreateBelief(ctx context.Context, b model.ApplicantBelief) (model.ApplicantBelief, error)
	UpdateBelief(ctx context.Context, b model.ApplicantBelief) (model.ApplicantBelief, error)

	// GetReviewerStats returns ErrNotFound for reviewers with no reviews.
	GetReviewerStats(ctx context.Context, reviewerID string) (model.ReviewerStats, error)
	IncrementReviewerStats(ctx context.Context, reviewerID string, at time.Time) (model.ReviewerStats, error)

	AppendEvent(ctx context.Context, e model.Event) error
	// ListEvents returns a registration's events oldest first.
	ListEvents(ctx context.Context, registrationID string) ([]model.Event, error)
}

// Order selects the sort of QueryRegistrations.
type Order int

const (
	// OrderSubmitted sorts by submission time, then id.
	OrderSubmitted Order = iota
	// OrderAssignment sorts by review count, then submission time, then id.
	OrderAssignment
)

// RegistrationQuery filters registrations. Zero-valued fields do not filter.
type RegistrationQuery struct {
	HackathonID         string
	ApplicantID         string
	ReviewStatuses      []model.ReviewStatus
	ApplicationStatuses []model.ApplicationStatus
	// ExcludeReviewer drops registrations the reviewer was assigned or reviewed.
	ExcludeReviewer string
	// MaxAssigned keeps registrations with AssignedCount below it.
	MaxAssigned int
	// RsvpDeadlineBefore keeps registrations whose deadline is strictly before it.
	RsvpDeadlineBefore *time.Time
	// RsvpPending keeps registrations that have not answered.
	RsvpPending bool
	Order       Order
	Limit       int
}

// Matches reports whether reg passes every filter except ExcludeReviewer,
// which needs assignment and review data.
func (q RegistrationQuery) Matches(reg model.Registration) bool {
	if q.HackathonID != "" && reg.HackathonID != q.HackathonID {
		return false
	}
	if q.ApplicantID != "" && reg.ApplicantID != q.ApplicantID {
		return false
	}
	if len(q.ReviewStatuses) > 0 && !containsReview(q.ReviewStatuses, reg.ReviewStatus) {
		return false
	}
	if len(q.ApplicationStatuses) > 0 && !containsStatus(q.ApplicationStatuses, reg.ApplicationStatus) {
		return false
	}
	if q.MaxAssigned > 0 && reg.AssignedCount >= q.MaxAssigned {
		return false
	}
	if q.RsvpDeadlineBefore != nil && (reg.RsvpDeadline == nil || !reg.RsvpDeadline.Before(*q.RsvpDeadlineBefore)) {
		return false
	}
	if q.RsvpPending && reg.RsvpAt != nil {
		return false
	}
	return true
}

// Less orders two registrations per q.Order.
func (q RegistrationQuery) Less(a, b model.Registration) bool {
	if q.Order == OrderAssignment {
		return model.AssignsBefore(a, b)
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return model.IDLess(a.ID, b.ID)
}

// Summary counts registrations by state.
type Summary struct {
	Registrations    int
	ByReviewStatus   map[model.ReviewStatus]int
	ByApplication    map[model.ApplicationStatus]int
	AwaitingDecision int // graded and pending or waitlisted
	Reviews          int
	Beliefs          int
	Prioritized      int
}

func containsReview(list []model.ReviewStatus, s model.ReviewStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsStatus(list []model.ApplicationStatus, s model.ApplicationStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
