package model

import "time"

// EventKind names an audited state change.
type EventKind string

// Event kinds.
const (
	EventRegistrationCreated EventKind = "registration_created"
	EventReviewAssigned      EventKind = "review_assigned"
	EventReviewSubmitted     EventKind = "review_submitted"
	EventRegistrationGraded  EventKind = "registration_graded"
	EventStatusChanged       EventKind = "status_changed"
	EventRsvpExpired         EventKind = "rsvp_expired"
	EventBeliefReset         EventKind = "belief_reset"
	EventPriorityChanged     EventKind = "priority_changed"
)

// Event is an append-only audit record written in the same unit of work as
// the change it describes, and published to notifiers after commit.
type Event struct {
	EventID        string    // unique id, used for at-most-once dispatch
	Kind           EventKind // what happened
	RegistrationID string    // empty for applicant-level events
	HackathonID    string
	ApplicantID    string
	ActorID        string // reviewer, administrator or SystemActor
	From           string // previous state, if any
	To             string // new state, if any
	Detail         string // free-form context, e.g. the grade
	OccurredAt     time.Time
}
