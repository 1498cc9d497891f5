package memory

import (
	"context"
	"sort"
	"time"

	"github.com/okian/admit/internal/adapters/repository"
	"github.com/okian/admit/internal/domain/model"
)

// tx stages writes for one unit of work. It is used by a single goroutine.
type tx struct {
	s *Store

	regs        map[string]model.Registration
	createdRegs map[string]struct{}
	readRegs    map[string]int64

	beliefs        map[model.BeliefKey]model.ApplicantBelief
	createdBeliefs map[model.BeliefKey]struct{}
	readBeliefs    map[model.BeliefKey]int64

	reviews     []model.Review
	assignments []model.Assignment
	statDeltas  map[string]int64
	statAt      map[string]time.Time
	events      []model.Event
}

var _ repository.Tx = (*tx)(nil)

func newTx(s *Store) *tx {
	return &tx{
		s:              s,
		regs:           make(map[string]model.Registration),
		createdRegs:    make(map[string]struct{}),
		readRegs:       make(map[string]int64),
		beliefs:        make(map[model.BeliefKey]model.ApplicantBelief),
		createdBeliefs: make(map[model.BeliefKey]struct{}),
		readBeliefs:    make(map[model.BeliefKey]int64),
		statDeltas:     make(map[string]int64),
		statAt:         make(map[string]time.Time),
	}
}

// registration returns the unit's view of id and records the committed
// version it observed.
func (t *tx) registration(id string) (model.Registration, bool) {
	if reg, ok := t.regs[id]; ok {
		return reg, true
	}
	t.s.mu.RLock()
	reg, ok := t.s.regs[id]
	t.s.mu.RUnlock()
	if !ok {
		return model.Registration{}, false
	}
	if _, seen := t.readRegs[id]; !seen {
		t.readRegs[id] = reg.Version
	}
	return reg, true
}

func (t *tx) GetRegistration(_ context.Context, id string) (model.Registration, error) {
	reg, ok := t.registration(id)
	if !ok {
		return model.Registration{}, repository.ErrNotFound
	}
	return reg, nil
}

func (t *tx) CreateRegistration(_ context.Context, reg model.Registration) (model.Registration, error) {
	if _, ok := t.regs[reg.ID]; ok {
		return model.Registration{}, repository.ErrDuplicateKey
	}
	for _, staged := range t.regs {
		if staged.BeliefKey() == reg.BeliefKey() {
			return model.Registration{}, repository.ErrDuplicateKey
		}
	}
	t.s.mu.RLock()
	_, idTaken := t.s.regs[reg.ID]
	_, keyTaken := t.s.regByApplicant[reg.BeliefKey()]
	t.s.mu.RUnlock()
	if idTaken || keyTaken {
		return model.Registration{}, repository.ErrDuplicateKey
	}

	reg.Version = 1
	t.regs[reg.ID] = reg
	t.createdRegs[reg.ID] = struct{}{}
	return reg, nil
}

func (t *tx) UpdateRegistration(_ context.Context, reg model.Registration) (model.Registration, error) {
	cur, ok := t.registration(reg.ID)
	if !ok {
		return model.Registration{}, repository.ErrNotFound
	}
	if cur.Version != reg.Version {
		return model.Registration{}, repository.ErrConcurrencyConflict
	}
	reg.HackathonID = cur.HackathonID
	reg.ApplicantID = cur.ApplicantID
	reg.Version = cur.Version + 1
	t.regs[reg.ID] = reg
	return reg, nil
}

// snapshot merges committed registrations with the unit's staged ones.
func (t *tx) snapshot(keep func(model.Registration) bool) []model.Registration {
	t.s.mu.RLock()
	out := make([]model.Registration, 0, len(t.s.regs)+len(t.regs))
	for id, reg := range t.s.regs {
		if _, staged := t.regs[id]; staged {
			continue
		}
		if keep(reg) {
			out = append(out, reg)
		}
	}
	t.s.mu.RUnlock()

	for _, reg := range t.regs {
		if keep(reg) {
			out = append(out, reg)
		}
	}
	return out
}

func (t *tx) touchedBy(registrationID, reviewerID string) bool {
	key := pairKey{registrationID, reviewerID}
	for _, a := range t.assignments {
		if a.RegistrationID == registrationID && a.ReviewerID == reviewerID {
			return true
		}
	}
	for _, r := range t.reviews {
		if r.RegistrationID == registrationID && r.ReviewerID == reviewerID {
			return true
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if _, ok := t.s.assignments[key]; ok {
		return true
	}
	_, ok := t.s.reviewKeys[key]
	return ok
}

func (t *tx) QueryRegistrations(_ context.Context, q repository.RegistrationQuery) ([]model.Registration, error) {
	if q.Limit < 0 {
		return nil, repository.ErrInvalidLimit
	}
	out := t.snapshot(q.Matches)
	if q.ExcludeReviewer != "" {
		kept := out[:0]
		for _, reg := range out {
			if !t.touchedBy(reg.ID, q.ExcludeReviewer) {
				kept = append(kept, reg)
			}
		}
		out = kept
	}
	sort.Slice(out, func(i, j int) bool { return q.Less(out[i], out[j]) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// dirty reports whether the unit staged anything that could move hackathonID's
// acceptance queue.
func (t *tx) dirty(hackathonID string) bool {
	for _, reg := range t.regs {
		if reg.HackathonID == hackathonID {
			return true
		}
	}
	for key := range t.beliefs {
		if key.HackathonID == hackathonID {
			return true
		}
	}
	return false
}

// scanRanked builds a hackathon's queue from the merged view.
func (t *tx) scanRanked(hackathonID string) []model.Ranked {
	regs := t.snapshot(func(reg model.Registration) bool {
		return reg.HackathonID == hackathonID && queued(reg)
	})
	out := make([]model.Ranked, 0, len(regs))
	for _, reg := range regs {
		if b, ok := t.belief(reg.BeliefKey()); ok {
			out = append(out, model.Ranked{Registration: reg, Belief: b})
		}
	}
	sort.Slice(out, func(i, j int) bool { return model.RanksBefore(out[i], out[j]) })
	return out
}

func (t *tx) RankForAcceptance(_ context.Context, hackathonID string, limit int) ([]model.Ranked, error) {
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	if t.dirty(hackathonID) {
		out := t.scanRanked(hackathonID)
		if len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	idx, ok := t.s.ranks[hackathonID]
	if !ok {
		return []model.Ranked{}, nil
	}
	return idx.top(limit), nil
}

func (t *tx) AcceptancePosition(_ context.Context, registrationID string) (int, error) {
	reg, ok := t.registration(registrationID)
	if !ok {
		return 0, repository.ErrNotFound
	}
	if t.dirty(reg.HackathonID) {
		for i, r := range t.scanRanked(reg.HackathonID) {
			if r.Registration.ID == registrationID {
				return i + 1, nil
			}
		}
		return 0, repository.ErrNotFound
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if idx, ok := t.s.ranks[reg.HackathonID]; ok {
		if pos, ok := idx.position(registrationID); ok {
			return pos, nil
		}
	}
	return 0, repository.ErrNotFound
}

func (t *tx) Summarize(_ context.Context) (repository.Summary, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	sum := repository.Summary{
		Registrations:  len(t.s.regs),
		ByReviewStatus: make(map[model.ReviewStatus]int),
		ByApplication:  make(map[model.ApplicationStatus]int),
		Reviews:        len(t.s.reviewKeys),
		Beliefs:        len(t.s.beliefs),
	}
	for _, reg := range t.s.regs {
		sum.ByReviewStatus[reg.ReviewStatus]++
		sum.ByApplication[reg.ApplicationStatus]++
		if queued(reg) {
			sum.AwaitingDecision++
		}
	}
	for _, b := range t.s.beliefs {
		if b.Prioritized {
			sum.Prioritized++
		}
	}
	return sum, nil
}

func (t *tx) CreateAssignment(ctx context.Context, a model.Assignment) error {
	has, err := t.HasAssignment(ctx, a.RegistrationID, a.ReviewerID)
	if err != nil {
		return err
	}
	if has {
		return repository.ErrDuplicateKey
	}
	t.assignments = append(t.assignments, a)
	return nil
}

func (t *tx) HasAssignment(_ context.Context, registrationID, reviewerID string) (bool, error) {
	for _, a := range t.assignments {
		if a.RegistrationID == registrationID && a.ReviewerID == reviewerID {
			return true, nil
		}
	}
	t.s.mu.RLock()
	_, ok := t.s.assignments[pairKey{registrationID, reviewerID}]
	t.s.mu.RUnlock()
	return ok, nil
}

func (t *tx) CreateReview(ctx context.Context, r model.Review) (model.Review, error) {
	if _, err := t.FindReview(ctx, r.RegistrationID, r.ReviewerID); err == nil {
		return model.Review{}, repository.ErrDuplicateKey
	}
	r.Seq = 0
	t.reviews = append(t.reviews, r)
	return r, nil
}

func (t *tx) FindReview(_ context.Context, registrationID, reviewerID string) (model.Review, error) {
	for _, r := range t.reviews {
		if r.RegistrationID == registrationID && r.ReviewerID == reviewerID {
			return r, nil
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, r := range t.s.reviews[registrationID] {
		if r.ReviewerID == reviewerID {
			return r, nil
		}
	}
	return model.Review{}, repository.ErrNotFound
}

func (t *tx) ListReviews(_ context.Context, registrationID string) ([]model.Review, error) {
	t.s.mu.RLock()
	committed := t.s.reviews[registrationID]
	out := make([]model.Review, len(committed), len(committed)+len(t.reviews))
	copy(out, committed)
	t.s.mu.RUnlock()

	for _, r := range t.reviews {
		if r.RegistrationID == registrationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *tx) belief(key model.BeliefKey) (model.ApplicantBelief, bool) {
	if b, ok := t.beliefs[key]; ok {
		return b, true
	}
	t.s.mu.RLock()
	b, ok := t.s.beliefs[key]
	t.s.mu.RUnlock()
	if !ok {
		return model.ApplicantBelief{}, false
	}
	if _, seen := t.readBeliefs[key]; !seen {
		t.readBeliefs[key] = b.Version
	}
	return b, true
}

func (t *tx) GetBelief(_ context.Context, key model.BeliefKey) (model.ApplicantBelief, error) {
	b, ok := t.belief(key)
	if !ok {
		return model.ApplicantBelief{}, repository.ErrNotFound
	}
	return b, nil
}

func (t *tx) CreateBelief(_ context.Context, b model.ApplicantBelief) (model.ApplicantBelief, error) {
	key := b.Key()
	if _, ok := t.beliefs[key]; ok {
		return model.ApplicantBelief{}, repository.ErrDuplicateKey
	}
	t.s.mu.RLock()
	_, taken := t.s.beliefs[key]
	t.s.mu.RUnlock()
	if taken {
		return model.ApplicantBelief{}, repository.ErrConcurrencyConflict
	}

	b.Version = 1
	t.beliefs[key] = b
	t.createdBeliefs[key] = struct{}{}
	return b, nil
}

func (t *tx) UpdateBelief(_ context.Context, b model.ApplicantBelief) (model.ApplicantBelief, error) {
	cur, ok := t.belief(b.Key())
	if !ok {
		return model.ApplicantBelief{}, repository.ErrNotFound
	}
	if cur.Version != b.Version {
		return model.ApplicantBelief{}, repository.ErrConcurrencyConflict
	}
	b.Version = cur.Version + 1
	t.beliefs[b.Key()] = b
	return b, nil
}

func (t *tx) GetReviewerStats(_ context.Context, reviewerID string) (model.ReviewerStats, error) {
	t.s.mu.RLock()
	st, ok := t.s.stats[reviewerID]
	t.s.mu.RUnlock()

	if delta := t.statDeltas[reviewerID]; delta > 0 {
		st.ReviewerID = reviewerID
		st.TotalReviewed += delta
		st.UpdatedAt = t.statAt[reviewerID]
		ok = true
	}
	if !ok {
		return model.ReviewerStats{}, repository.ErrNotFound
	}
	return st, nil
}

func (t *tx) IncrementReviewerStats(ctx context.Context, reviewerID string, at time.Time) (model.ReviewerStats, error) {
	t.statDeltas[reviewerID]++
	t.statAt[reviewerID] = at
	return t.GetReviewerStats(ctx, reviewerID)
}

func (t *tx) AppendEvent(_ context.Context, e model.Event) error {
	t.events = append(t.events, e)
	return nil
}

func (t *tx) ListEvents(_ context.Context, registrationID string) ([]model.Event, error) {
	t.s.mu.RLock()
	committed := t.s.events[registrationID]
	out := make([]model.Event, len(committed), len(committed)+len(t.events))
	copy(out, committed)
	t.s.mu.RUnlock()

	for _, e := range t.events {
		if e.RegistrationID == registrationID {
			out = append(out, e)
		}
	}
	return out, nil
}
