// Package types contains the JSON shapes exchanged over the HTTP API.
package types

import (
	"time"

	"github.com/okian/admit/internal/domain/model"
)

// Registration is the wire form of model.Registration.
type Registration struct {
	ID                string     `json:"id"`
	HackathonID       string     `json:"hackathon_id"`
	ApplicantID       string     `json:"applicant_id"`
	SubmittedAt       time.Time  `json:"submitted_at"`
	ReviewStatus      string     `json:"review_status"`
	Grade             string     `json:"grade,omitempty"`
	GradedBy          string     `json:"graded_by,omitempty"`
	GradedAt          *time.Time `json:"graded_at,omitempty"`
	ReviewCount       int        `json:"review_count"`
	AssignedCount     int        `json:"assigned_count"`
	ApplicationStatus string     `json:"application_status"`
	AcceptedAt        *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy        string     `json:"accepted_by,omitempty"`
	RsvpDeadline      *time.Time `json:"rsvp_deadline,omitempty"`
	RsvpAt            *time.Time `json:"rsvp_at,omitempty"`
	DecidedAt         *time.Time `json:"decided_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Version           int64      `json:"version"`
}

// RegistrationDetail adds the applicant's belief and queue position when
// known.
type RegistrationDetail struct {
	Registration
	Belief        *Belief `json:"belief,omitempty"`
	QueuePosition int     `json:"queue_position,omitempty"`
}

// Belief is the wire form of model.ApplicantBelief.
type Belief struct {
	HackathonID  string    `json:"hackathon_id"`
	ApplicantID  string    `json:"applicant_id"`
	Mu           float64   `json:"mu"`
	SigmaSquared float64   `json:"sigma_squared"`
	Prioritized  bool      `json:"prioritized"`
	ReviewCount  int       `json:"review_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Review is the wire form of model.Review.
type Review struct {
	ID             string    `json:"id"`
	RegistrationID string    `json:"registration_id"`
	ReviewerID     string    `json:"reviewer_id"`
	Grade          string    `json:"grade"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Seq            int64     `json:"seq,omitempty"`
}

// Assignment is the wire form of model.Assignment.
type Assignment struct {
	RegistrationID string    `json:"registration_id"`
	ReviewerID     string    `json:"reviewer_id"`
	AssignedAt     time.Time `json:"assigned_at"`
}

// ReviewerStats is the wire form of model.ReviewerStats.
type ReviewerStats struct {
	ReviewerID    string    `json:"reviewer_id"`
	TotalReviewed int64     `json:"total_reviewed"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Event is the wire form of model.Event.
type Event struct {
	EventID        string    `json:"event_id"`
	Kind           string    `json:"kind"`
	RegistrationID string    `json:"registration_id,omitempty"`
	HackathonID    string    `json:"hackathon_id"`
	ApplicantID    string    `json:"applicant_id"`
	ActorID        string    `json:"actor_id"`
	From           string    `json:"from,omitempty"`
	To             string    `json:"to,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// QueueEntry is one row of the acceptance queue.
type QueueEntry struct {
	Rank           int       `json:"rank"`
	RegistrationID string    `json:"registration_id"`
	ApplicantID    string    `json:"applicant_id"`
	Grade          string    `json:"grade"`
	Status         string    `json:"application_status"`
	Mu             float64   `json:"mu"`
	SigmaSquared   float64   `json:"sigma_squared"`
	Prioritized    bool      `json:"prioritized"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// ReviewOutcome answers POST /reviews.
type ReviewOutcome struct {
	Review       Review        `json:"review"`
	Registration Registration  `json:"registration"`
	Belief       Belief        `json:"belief"`
	Stats        ReviewerStats `json:"reviewer_stats"`
	Graded       bool          `json:"graded"`
}

// AssignmentResult answers POST /assignments. Assignment is nil when no work
// is available.
type AssignmentResult struct {
	Assigned   bool        `json:"assigned"`
	Assignment *Assignment `json:"assignment,omitempty"`
}

// ExpireResult answers POST /rsvp/expire.
type ExpireResult struct {
	Expired []string `json:"expired"`
}

// Requests.
type (
	CreateRegistrationRequest struct {
		ID          string     `json:"id,omitempty"`
		HackathonID string     `json:"hackathon_id"`
		ApplicantID string     `json:"applicant_id"`
		SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	}

	AssignmentRequest struct {
		HackathonID string `json:"hackathon_id,omitempty"`
		ReviewerID  string `json:"reviewer_id"`
	}

	ReviewRequest struct {
		RegistrationID string `json:"registration_id"`
		ReviewerID     string `json:"reviewer_id"`
		Grade          string `json:"grade"`
		Notes          string `json:"notes,omitempty"`
	}

	DecisionRequest struct {
		Status  string `json:"status"`
		ActorID string `json:"actor_id"`
	}

	PriorityRequest struct {
		Prioritized bool   `json:"prioritized"`
		ActorID     string `json:"actor_id"`
	}

	ActorRequest struct {
		ActorID string `json:"actor_id"`
	}
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FromRegistration converts a domain registration.
func FromRegistration(r model.Registration) Registration { //nolint:gocritic // hugeParam
	return Registration{
		ID:                r.ID,
		HackathonID:       r.HackathonID,
		ApplicantID:       r.ApplicantID,
		SubmittedAt:       r.SubmittedAt,
		ReviewStatus:      string(r.ReviewStatus),
		Grade:             string(r.Grade),
		GradedBy:          r.GradedBy,
		GradedAt:          r.GradedAt,
		ReviewCount:       r.ReviewCount,
		AssignedCount:     r.AssignedCount,
		ApplicationStatus: string(r.ApplicationStatus),
		AcceptedAt:        r.AcceptedAt,
		AcceptedBy:        r.AcceptedBy,
		RsvpDeadline:      r.RsvpDeadline,
		RsvpAt:            r.RsvpAt,
		DecidedAt:         r.DecidedAt,
		UpdatedAt:         r.UpdatedAt,
		Version:           r.Version,
	}
}

// FromBelief converts a domain belief.
func FromBelief(b model.ApplicantBelief) Belief {
	return Belief{
		HackathonID:  b.HackathonID,
		ApplicantID:  b.ApplicantID,
		Mu:           b.Mu,
		SigmaSquared: b.SigmaSquared,
		Prioritized:  b.Prioritized,
		ReviewCount:  b.ReviewCount,
		UpdatedAt:    b.UpdatedAt,
	}
}

// FromReview converts a domain review.
func FromReview(r model.Review) Review {
	return Review{
		ID:             r.ID,
		RegistrationID: r.RegistrationID,
		ReviewerID:     r.ReviewerID,
		Grade:          string(r.Grade),
		Notes:          r.Notes,
		CreatedAt:      r.CreatedAt,
		Seq:            r.Seq,
	}
}

// FromAssignment converts a domain assignment.
func FromAssignment(a model.Assignment) Assignment {
	return Assignment(a)
}

// FromStats converts domain reviewer stats.
func FromStats(s model.ReviewerStats) ReviewerStats {
	return ReviewerStats(s)
}

// FromEvents converts an audit trail.
func FromEvents(events []model.Event) []Event {
	out := make([]Event, len(events))
	for i, e := range events {
		out[i] = Event{
			EventID:        e.EventID,
			Kind:           string(e.Kind),
			RegistrationID: e.RegistrationID,
			HackathonID:    e.HackathonID,
			ApplicantID:    e.ApplicantID,
			ActorID:        e.ActorID,
			From:           e.From,
			To:             e.To,
			Detail:         e.Detail,
			OccurredAt:     e.OccurredAt,
		}
	}
	return out
}

// FromRanked numbers a ranked slice from 1.
func FromRanked(ranked []model.Ranked) []QueueEntry {
	out := make([]QueueEntry, len(ranked))
	for i, r := range ranked {
		out[i] = QueueEntry{
			Rank:           i + 1,
			RegistrationID: r.Registration.ID,
			ApplicantID:    r.Registration.ApplicantID,
			Grade:          string(r.Registration.Grade),
			Status:         string(r.Registration.ApplicationStatus),
			Mu:             r.Belief.Mu,
			SigmaSquared:   r.Belief.SigmaSquared,
			Prioritized:    r.Belief.Prioritized,
			SubmittedAt:    r.Registration.SubmittedAt,
		}
	}
	return out
}
