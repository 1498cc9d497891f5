// Package memory is an in-process repository.Store with optimistic
// concurrency: a unit of work stages its writes and validates the versions it
// observed when it commits.
package memory

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/admit/internal/adapters/repository"
	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/pkg/metrics"
)

const storeName = "memory"

type pairKey struct {
	registrationID string
	reviewerID     string
}

// Store keeps every record in maps guarded by one RWMutex. Reads take the read
// lock briefly; commits take the write lock once.
type Store struct {
	mu sync.RWMutex

	regs           map[string]model.Registration
	regByApplicant map[model.BeliefKey]string
	reviews        map[string][]model.Review
	reviewKeys     map[pairKey]struct{}
	assignments    map[pairKey]model.Assignment
	beliefs        map[model.BeliefKey]model.ApplicantBelief
	stats          map[string]model.ReviewerStats
	events         map[string][]model.Event
	seq            int64

	ranks map[string]*rankIndex
	rng   *rand.Rand

	seed                  uint64
	seeded                bool
	metricsUpdateInterval time.Duration

	closed   bool
	wg       sync.WaitGroup
	stopChan chan struct{}
}

var _ repository.Store = (*Store)(nil)

// New constructs an empty store and starts its metrics updater, which stops
// on Close or when ctx ends.
func New(ctx context.Context, opts ...Option) *Store {
	s := &Store{
		regs:                  make(map[string]model.Registration),
		regByApplicant:        make(map[model.BeliefKey]string),
		reviews:               make(map[string][]model.Review),
		reviewKeys:            make(map[pairKey]struct{}),
		assignments:           make(map[pairKey]model.Assignment),
		beliefs:               make(map[model.BeliefKey]model.ApplicantBelief),
		stats:                 make(map[string]model.ReviewerStats),
		events:                make(map[string][]model.Event),
		ranks:                 make(map[string]*rankIndex),
		metricsUpdateInterval: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	seed := s.seed
	if !s.seeded {
		seed = rand.Uint64()
	}
	s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	s.stopChan = make(chan struct{})
	s.startMetricsUpdater(ctx)

	return s
}

// Name implements repository.Store.
func (s *Store) Name() string { return storeName }

// Atomic implements repository.Store.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	t := newTx(s)
	if err := fn(ctx, t); err != nil {
		metrics.RecordStoreTransaction(storeName, "rolled_back", msSince(start))
		return err
	}
	if err := s.commit(t); err != nil {
		outcome := "error"
		if errors.Is(err, repository.ErrConcurrencyConflict) {
			outcome = "conflict"
		}
		metrics.RecordStoreTransaction(storeName, outcome, msSince(start))
		return err
	}
	metrics.RecordStoreTransaction(storeName, "committed", msSince(start))
	return nil
}

// Close stops the metrics updater. Later units of work fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return repository.ErrClosed
	}
	if err := s.validate(t); err != nil {
		return err
	}

	touched := make(map[string]struct{}, len(t.regs))
	for id, reg := range t.regs {
		s.regs[id] = reg
		s.regByApplicant[reg.BeliefKey()] = id
		touched[id] = struct{}{}
	}
	for key, b := range t.beliefs {
		s.beliefs[key] = b
		if id, ok := s.regByApplicant[key]; ok {
			touched[id] = struct{}{}
		}
	}
	for _, r := range t.reviews {
		s.seq++
		r.Seq = s.seq
		s.reviews[r.RegistrationID] = append(s.reviews[r.RegistrationID], r)
		s.reviewKeys[pairKey{r.RegistrationID, r.ReviewerID}] = struct{}{}
	}
	for _, a := range t.assignments {
		s.assignments[pairKey{a.RegistrationID, a.ReviewerID}] = a
	}
	for id, delta := range t.statDeltas {
		st := s.stats[id]
		st.ReviewerID = id
		st.TotalReviewed += delta
		st.UpdatedAt = t.statAt[id]
		s.stats[id] = st
	}
	for _, e := range t.events {
		s.events[e.RegistrationID] = append(s.events[e.RegistrationID], e)
	}

	for id := range touched {
		s.refreshRank(s.regs[id])
	}
	return nil
}

// validate checks the unit's read set and uniqueness constraints against
// committed state. Caller holds the write lock.
func (s *Store) validate(t *tx) error {
	for id, v := range t.readRegs {
		cur, ok := s.regs[id]
		if !ok || cur.Version != v {
			return repository.ErrConcurrencyConflict
		}
	}
	for id := range t.createdRegs {
		if _, ok := s.regs[id]; ok {
			return repository.ErrDuplicateKey
		}
		if _, ok := s.regByApplicant[t.regs[id].BeliefKey()]; ok {
			return repository.ErrDuplicateKey
		}
	}
	for key, v := range t.readBeliefs {
		cur, ok := s.beliefs[key]
		if !ok || cur.Version != v {
			return repository.ErrConcurrencyConflict
		}
	}
	for key := range t.createdBeliefs {
		if _, ok := s.beliefs[key]; ok {
			return repository.ErrConcurrencyConflict
		}
	}
	for _, r := range t.reviews {
		if _, ok := s.reviewKeys[pairKey{r.RegistrationID, r.ReviewerID}]; ok {
			return repository.ErrDuplicateKey
		}
	}
	for _, a := range t.assignments {
		if _, ok := s.assignments[pairKey{a.RegistrationID, a.ReviewerID}]; ok {
			return repository.ErrDuplicateKey
		}
	}
	return nil
}

// refreshRank moves reg into or out of its hackathon's rank index. Caller
// holds the write lock.
func (s *Store) refreshRank(reg model.Registration) {
	idx, ok := s.ranks[reg.HackathonID]
	if !ok {
		idx = newRankIndex(s.rng)
		s.ranks[reg.HackathonID] = idx
	}
	b, hasBelief := s.beliefs[reg.BeliefKey()]
	if hasBelief && queued(reg) {
		idx.upsert(model.Ranked{Registration: reg, Belief: b})
		return
	}
	idx.remove(reg.ID)
}

// queued reports whether reg belongs in the acceptance queue.
func queued(reg model.Registration) bool {
	return reg.ReviewStatus == model.ReviewGraded && reg.ApplicationStatus.AwaitingDecision()
}

func (s *Store) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *Store) updateMetrics() {
	s.mu.RLock()
	regs := len(s.regs)
	indexed := 0
	for _, idx := range s.ranks {
		indexed += idx.len()
	}
	s.mu.RUnlock()

	metrics.UpdateRegistrationsTotal(regs)
	metrics.UpdateRankIndexSize(indexed)
	metrics.UpdateAwaitingDecision(indexed)
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
