package model

import "time"

// Registration is the slice of a hackathon application the engine owns.
// Nullable fields use pointers or the zero value of their enum.
type Registration struct {
	ID          string
	HackathonID string
	ApplicantID string
	SubmittedAt time.Time

	ReviewStatus  ReviewStatus
	Grade         Grade // consensus grade once graded
	GradedBy      string
	GradedAt      *time.Time
	ReviewCount   int // submitted reviews
	AssignedCount int // reviewers handed this registration

	ApplicationStatus ApplicationStatus
	AcceptedAt        *time.Time
	AcceptedBy        string
	RsvpDeadline      *time.Time
	RsvpAt            *time.Time
	DecidedAt         *time.Time

	UpdatedAt time.Time
	Version   int64 // optimistic concurrency token, bumped on every write
}

// BeliefKey returns the key of the applicant belief this registration feeds.
func (r Registration) BeliefKey() BeliefKey {
	return BeliefKey{HackathonID: r.HackathonID, ApplicantID: r.ApplicantID}
}

// RsvpOverdue reports whether an accepted registration missed its deadline
// at now without answering.
func (r Registration) RsvpOverdue(now time.Time) bool {
	return r.ApplicationStatus == StatusAccepted &&
		r.RsvpAt == nil &&
		r.RsvpDeadline != nil &&
		r.RsvpDeadline.Before(now)
}

// Review is one reviewer's immutable grade of one registration.
type Review struct {
	ID             string
	RegistrationID string
	ReviewerID     string
	Grade          Grade
	Notes          string
	CreatedAt      time.Time
	Seq            int64 // arrival order assigned by the store
}

// Assignment records that a reviewer was handed a registration.
type Assignment struct {
	RegistrationID string
	ReviewerID     string
	AssignedAt     time.Time
}

// ReviewerStats is the per-reviewer load counter used for balancing.
type ReviewerStats struct {
	ReviewerID    string
	TotalReviewed int64
	UpdatedAt     time.Time
}

// Ranked pairs a registration with the belief that orders it for admission.
type Ranked struct {
	Registration Registration
	Belief       ApplicantBelief
}

// RegistrationView is a registration with its applicant's belief and its
// acceptance queue position. Belief is nil before the first review and
// QueuePosition is 0 when the registration is not queued.
type RegistrationView struct {
	Registration  Registration
	Belief        *ApplicantBelief
	QueuePosition int
}
