package postgres

import (
	"time"

	"github.com/okian/admit/internal/domain/model"
)

type registrationModel struct {
	ID                string     `gorm:"column:id;primaryKey"`
	HackathonID       string     `gorm:"column:hackathon_id;not null;uniqueIndex:uq_registrations_applicant,priority:1"`
	ApplicantID       string     `gorm:"column:applicant_id;not null;uniqueIndex:uq_registrations_applicant,priority:2"`
	SubmittedAt       time.Time  `gorm:"column:submitted_at;not null"`
	ReviewStatus      string     `gorm:"column:review_status;not null;index"`
	Grade             string     `gorm:"column:grade"`
	GradedBy          string     `gorm:"column:graded_by"`
	GradedAt          *time.Time `gorm:"column:graded_at"`
	ReviewCount       int        `gorm:"column:review_count;not null"`
	AssignedCount     int        `gorm:"column:assigned_count;not null"`
	ApplicationStatus string     `gorm:"column:application_status;not null;index"`
	AcceptedAt        *time.Time `gorm:"column:accepted_at"`
	AcceptedBy        string     `gorm:"column:accepted_by"`
	RsvpDeadline      *time.Time `gorm:"column:rsvp_deadline"`
	RsvpAt            *time.Time `gorm:"column:rsvp_at"`
	DecidedAt         *time.Time `gorm:"column:decided_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime:false"`
	Version           int64      `gorm:"column:version;not null"`
}

func (registrationModel) TableName() string {
	return "registrations"
}

func registrationModelFromEntity(reg model.Registration) registrationModel {
	return registrationModel{
		ID:                reg.ID,
		HackathonID:       reg.HackathonID,
		ApplicantID:       reg.ApplicantID,
		SubmittedAt:       reg.SubmittedAt.UTC(),
		ReviewStatus:      string(reg.ReviewStatus),
		Grade:             string(reg.Grade),
		GradedBy:          reg.GradedBy,
		GradedAt:          utcPtr(reg.GradedAt),
		ReviewCount:       reg.ReviewCount,
		AssignedCount:     reg.AssignedCount,
		ApplicationStatus: string(reg.ApplicationStatus),
		AcceptedAt:        utcPtr(reg.AcceptedAt),
		AcceptedBy:        reg.AcceptedBy,
		RsvpDeadline:      utcPtr(reg.RsvpDeadline),
		RsvpAt:            utcPtr(reg.RsvpAt),
		DecidedAt:         utcPtr(reg.DecidedAt),
		UpdatedAt:         reg.UpdatedAt.UTC(),
		Version:           reg.Version,
	}
}

func (m registrationModel) toEntity() model.Registration {
	return model.Registration{
		ID:                m.ID,
		HackathonID:       m.HackathonID,
		ApplicantID:       m.ApplicantID,
		SubmittedAt:       m.SubmittedAt.UTC(),
		ReviewStatus:      model.ReviewStatus(m.ReviewStatus),
		Grade:             model.Grade(m.Grade),
		GradedBy:          m.GradedBy,
		GradedAt:          utcPtr(m.GradedAt),
		ReviewCount:       m.ReviewCount,
		AssignedCount:     m.AssignedCount,
		ApplicationStatus: model.ApplicationStatus(m.ApplicationStatus),
		AcceptedAt:        utcPtr(m.AcceptedAt),
		AcceptedBy:        m.AcceptedBy,
		RsvpDeadline:      utcPtr(m.RsvpDeadline),
		RsvpAt:            utcPtr(m.RsvpAt),
		DecidedAt:         utcPtr(m.DecidedAt),
		UpdatedAt:         m.UpdatedAt.UTC(),
		Version:           m.Version,
	}
}

// updates lists every mutable column; identity columns never change.
func (m registrationModel) updates(nextVersion int64) map[string]any {
	return map[string]any{
		"review_status":      m.ReviewStatus,
		"grade":              m.Grade,
		"graded_by":          m.GradedBy,
		"graded_at":          m.GradedAt,
		"review_count":       m.ReviewCount,
		"assigned_count":     m.AssignedCount,
		"application_status": m.ApplicationStatus,
		"accepted_at":        m.AcceptedAt,
		"accepted_by":        m.AcceptedBy,
		"rsvp_deadline":      m.RsvpDeadline,
		"rsvp_at":            m.RsvpAt,
		"decided_at":         m.DecidedAt,
		"updated_at":         m.UpdatedAt,
		"version":            nextVersion,
	}
}

type reviewModel struct {
	Seq            int64     `gorm:"column:seq;primaryKey;autoIncrement"`
	ID             string    `gorm:"column:id;not null;uniqueIndex"`
	RegistrationID string    `gorm:"column:registration_id;not null;uniqueIndex:uq_reviews_pair,priority:1"`
	ReviewerID     string    `gorm:"column:reviewer_id;not null;uniqueIndex:uq_reviews_pair,priority:2"`
	Grade          string    `gorm:"column:grade;not null"`
	Notes          string    `gorm:"column:notes"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime:false"`
}

func (reviewModel) TableName() string {
	return "reviews"
}

func (m reviewModel) toEntity() model.Review {
	return model.Review{
		ID:             m.ID,
		RegistrationID: m.RegistrationID,
		ReviewerID:     m.ReviewerID,
		Grade:          model.Grade(m.Grade),
		Notes:          m.Notes,
		CreatedAt:      m.CreatedAt.UTC(),
		Seq:            m.Seq,
	}
}

type assignmentModel struct {
	RegistrationID string    `gorm:"column:registration_id;primaryKey"`
	ReviewerID     string    `gorm:"column:reviewer_id;primaryKey"`
	AssignedAt     time.Time `gorm:"column:assigned_at;not null"`
}

func (assignmentModel) TableName() string {
	return "review_assignments"
}

type beliefModel struct {
	HackathonID  string    `gorm:"column:hackathon_id;primaryKey"`
	ApplicantID  string    `gorm:"column:applicant_id;primaryKey"`
	Mu           float64   `gorm:"column:mu;not null"`
	SigmaSquared float64   `gorm:"column:sigma_squared;not null"`
	Prioritized  bool      `gorm:"column:prioritized;not null"`
	ReviewCount  int       `gorm:"column:review_count;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
	Version      int64     `gorm:"column:version;not null"`
}

func (beliefModel) TableName() string {
	return "applicant_beliefs"
}

func beliefModelFromEntity(b model.ApplicantBelief) beliefModel {
	return beliefModel{
		HackathonID:  b.HackathonID,
		ApplicantID:  b.ApplicantID,
		Mu:           b.Mu,
		SigmaSquared: b.SigmaSquared,
		Prioritized:  b.Prioritized,
		ReviewCount:  b.ReviewCount,
		UpdatedAt:    b.UpdatedAt.UTC(),
		Version:      b.Version,
	}
}

func (m beliefModel) toEntity() model.ApplicantBelief {
	return model.ApplicantBelief{
		HackathonID: m.HackathonID,
		ApplicantID: m.ApplicantID,
		Belief:      model.Belief{Mu: m.Mu, SigmaSquared: m.SigmaSquared},
		Prioritized: m.Prioritized,
		ReviewCount: m.ReviewCount,
		UpdatedAt:   m.UpdatedAt.UTC(),
		Version:     m.Version,
	}
}

type reviewerStatsModel struct {
	ReviewerID    string    `gorm:"column:reviewer_id;primaryKey"`
	TotalReviewed int64     `gorm:"column:total_reviewed;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (reviewerStatsModel) TableName() string {
	return "reviewer_stats"
}

type eventModel struct {
	Seq            int64     `gorm:"column:seq;primaryKey;autoIncrement"`
	EventID        string    `gorm:"column:event_id;not null;uniqueIndex"`
	Kind           string    `gorm:"column:kind;not null"`
	RegistrationID string    `gorm:"column:registration_id;index"`
	HackathonID    string    `gorm:"column:hackathon_id"`
	ApplicantID    string    `gorm:"column:applicant_id"`
	ActorID        string    `gorm:"column:actor_id"`
	FromState      string    `gorm:"column:from_state"`
	ToState        string    `gorm:"column:to_state"`
	Detail         string    `gorm:"column:detail"`
	OccurredAt     time.Time `gorm:"column:occurred_at;not null"`
}

func (eventModel) TableName() string {
	return "registration_events"
}

func eventModelFromEntity(e model.Event) eventModel {
	return eventModel{
		EventID:        e.EventID,
		Kind:           string(e.Kind),
		RegistrationID: e.RegistrationID,
		HackathonID:    e.HackathonID,
		ApplicantID:    e.ApplicantID,
		ActorID:        e.ActorID,
		FromState:      e.From,
		ToState:        e.To,
		Detail:         e.Detail,
		OccurredAt:     e.OccurredAt.UTC(),
	}
}

func (m eventModel) toEntity() model.Event {
	return model.Event{
		EventID:        m.EventID,
		Kind:           model.EventKind(m.Kind),
		RegistrationID: m.RegistrationID,
		HackathonID:    m.HackathonID,
		ApplicantID:    m.ApplicantID,
		ActorID:        m.ActorID,
		From:           m.FromState,
		To:             m.ToState,
		Detail:         m.Detail,
		OccurredAt:     m.OccurredAt.UTC(),
	}
}

// rankedRow is a registration joined with its applicant belief.
type rankedRow struct {
	registrationModel `gorm:"embedded"`
	BeliefMu          float64   `gorm:"column:belief_mu"`
	BeliefSigma       float64   `gorm:"column:belief_sigma_squared"`
	BeliefPrioritized bool      `gorm:"column:belief_prioritized"`
	BeliefReviewCount int       `gorm:"column:belief_review_count"`
	BeliefUpdatedAt   time.Time `gorm:"column:belief_updated_at"`
	BeliefVersion     int64     `gorm:"column:belief_version"`
}

func (r rankedRow) toEntity() model.Ranked {
	reg := r.registrationModel.toEntity()
	return model.Ranked{
		Registration: reg,
		Belief: model.ApplicantBelief{
			HackathonID: reg.HackathonID,
			ApplicantID: reg.ApplicantID,
			Belief:      model.Belief{Mu: r.BeliefMu, SigmaSquared: r.BeliefSigma},
			Prioritized: r.BeliefPrioritized,
			ReviewCount: r.BeliefReviewCount,
			UpdatedAt:   r.BeliefUpdatedAt.UTC(),
			Version:     r.BeliefVersion,
		},
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// allModels lists every table for AutoMigrate.
func allModels() []any {
	return []any{
		&registrationModel{},
		&reviewModel{},
		&assignmentModel{},
		&beliefModel{},
		&reviewerStatsModel{},
		&eventModel{},
	}
}
