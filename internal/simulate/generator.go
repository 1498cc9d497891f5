package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/internal/domain/types"
	"github.com/okian/admit/pkg/logger"
)

// Quality mix of seeded applicants, in percent.
const (
	topShare    = 20
	middleShare = 50
)

// Applicant is a seeded registration with the grade an infallible reviewer
// would give it.
type Applicant struct {
	RegistrationID string
	ApplicantID    string
	Quality        model.Grade
}

// grader produces reviewer verdicts. It is safe for concurrent use.
type grader struct {
	mu    sync.Mutex
	rng   *rand.Rand
	noise float64
}

func newGrader(seed uint64, noise float64) *grader {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &grader{rng: rand.New(rand.NewPCG(seed, seed>>1|1)), noise: noise}
}

// quality draws an applicant's true grade.
func (g *grader) quality() model.Grade {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch n := g.rng.IntN(100); {
	case n < topShare:
		return model.GradeTop
	case n < topShare+middleShare:
		return model.GradeMiddle
	default:
		return model.GradeBottom
	}
}

// judge returns truth, or with probability noise a neighbouring grade.
func (g *grader) judge(truth model.Grade) model.Grade {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rng.Float64() >= g.noise {
		return truth
	}
	up := g.rng.IntN(2) == 0
	switch truth {
	case model.GradeTop:
		return model.GradeMiddle
	case model.GradeBottom:
		return model.GradeMiddle
	default:
		if up {
			return model.GradeTop
		}
		return model.GradeBottom
	}
}

// seedApplicants registers cfg.Applicants applications. Registration ids
// carry the hackathon id so repeated runs against one service never collide.
func seedApplicants(ctx context.Context, client *HTTPClient, cfg *Config, g *grader, stats *Stats) (map[string]Applicant, error) {
	log := logger.Named("simulate")
	log.Info(ctx, "seeding registrations",
		logger.Int("applicants", cfg.Applicants),
		logger.String("hackathon_id", cfg.HackathonID),
	)

	base := time.Now().UTC().Add(-time.Duration(cfg.Applicants) * time.Second)
	out := make(map[string]Applicant, cfg.Applicants)
	for i := 1; i <= cfg.Applicants; i++ {
		submitted := base.Add(time.Duration(i) * time.Second)
		a := Applicant{
			RegistrationID: strconv.Itoa(i),
			ApplicantID:    fmt.Sprintf("applicant-%04d", i),
			Quality:        g.quality(),
		}
		var reg types.Registration
		err := client.post(ctx, "/registrations", types.CreateRegistrationRequest{
			ID:          cfg.HackathonID + "-" + a.RegistrationID,
			HackathonID: cfg.HackathonID,
			ApplicantID: a.ApplicantID,
			SubmittedAt: &submitted,
		}, &reg)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", a.ApplicantID, err)
		}
		a.RegistrationID = reg.ID
		out[reg.ID] = a
	}
	stats.Seeded = len(out)
	return out, nil
}
