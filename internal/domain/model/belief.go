package model

import (
	"strings"
	"time"
)

// Belief is a Gaussian estimate of an applicant's latent quality.
type Belief struct {
	Mu           float64
	SigmaSquared float64
}

// BeliefKey identifies an applicant within a hackathon.
type BeliefKey struct {
	HackathonID string
	ApplicantID string
}

// ApplicantBelief is the persisted belief plus the administrative priority flag.
type ApplicantBelief struct {
	HackathonID string
	ApplicantID string
	Belief
	Prioritized bool
	ReviewCount int // observations folded into the belief since the last reset
	UpdatedAt   time.Time
	Version     int64
}

// Key returns the belief's identity.
func (b ApplicantBelief) Key() BeliefKey {
	return BeliefKey{HackathonID: b.HackathonID, ApplicantID: b.ApplicantID}
}

// RanksBefore orders candidates for acceptance: prioritized first, then
// higher mean, then lower variance, then earlier submission, then id.
func RanksBefore(a, b Ranked) bool {
	if a.Belief.Prioritized != b.Belief.Prioritized {
		return a.Belief.Prioritized
	}
	if a.Belief.Mu != b.Belief.Mu {
		return a.Belief.Mu > b.Belief.Mu
	}
	if a.Belief.SigmaSquared != b.Belief.SigmaSquared {
		return a.Belief.SigmaSquared < b.Belief.SigmaSquared
	}
	if !a.Registration.SubmittedAt.Equal(b.Registration.SubmittedAt) {
		return a.Registration.SubmittedAt.Before(b.Registration.SubmittedAt)
	}
	return IDLess(a.Registration.ID, b.Registration.ID)
}

// AssignsBefore orders the assignment pool: fewest reviews, then oldest
// submission, then lowest id.
func AssignsBefore(a, b Registration) bool {
	if a.ReviewCount != b.ReviewCount {
		return a.ReviewCount < b.ReviewCount
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return IDLess(a.ID, b.ID)
}

// IDLess orders identifiers: decimal ids first, compared numerically, then
// every other id in byte order.
func IDLess(a, b string) bool {
	da, db := isDecimal(a), isDecimal(b)
	if da != db {
		return da
	}
	if da {
		ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(ta) != len(tb) {
			return len(ta) < len(tb)
		}
		if ta != tb {
			return ta < tb
		}
	}
	return a < b
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
