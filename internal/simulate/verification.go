package simulate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/internal/domain/types"
	"github.com/okian/admit/pkg/logger"
)

// maxQueuePage is the largest limit the acceptance queue accepts by default.
const maxQueuePage = 500

// ErrInvariant marks a violated engine invariant.
var ErrInvariant = errors.New("invariant violated")

// Report is what verification observed.
type Report struct {
	Queue     []types.QueueEntry
	Agreement int // graded registrations whose consensus equals their quality
	Problems  []string
}

func (r *Report) fail(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Err joins every problem under ErrInvariant.
func (r *Report) Err() error {
	if len(r.Problems) == 0 {
		return nil
	}
	errs := []error{ErrInvariant}
	for _, p := range r.Problems {
		errs = append(errs, errors.New(p))
	}
	return errors.Join(errs...)
}

// verify reads the service back and checks the review caps, the grading
// count, the reviewer counters and the queue order.
func verify(ctx context.Context, client *HTTPClient, cfg *Config, applicants map[string]Applicant, stats *Stats) (*Report, error) {
	logger.Named("simulate").Info(ctx, "verifying results")
	rep := &Report{}

	positions := make(map[string]int, len(applicants))
	for id, a := range applicants {
		var d types.RegistrationDetail
		if err := client.get(ctx, "/registrations/"+url.PathEscape(id), &d); err != nil {
			return nil, fmt.Errorf("read %s: %w", id, err)
		}
		if d.ReviewCount > cfg.ReviewsRequired || d.AssignedCount > cfg.ReviewsRequired {
			rep.fail("%s exceeds the review cap: %d reviews, %d assigned", id, d.ReviewCount, d.AssignedCount)
		}
		if d.ReviewStatus != string(model.ReviewGraded) {
			rep.fail("%s is %s after every reviewer finished", id, d.ReviewStatus)
			continue
		}
		stats.Graded++
		if d.ReviewCount != cfg.ReviewsRequired {
			rep.fail("%s graded with %d reviews", id, d.ReviewCount)
		}
		if d.Belief == nil || d.Belief.ReviewCount != d.ReviewCount {
			rep.fail("%s belief does not reflect its reviews", id)
		}
		if d.Grade == string(a.Quality) {
			rep.Agreement++
		}
		positions[id] = d.QueuePosition
	}

	var total int64
	for i := 1; i <= cfg.Reviewers; i++ {
		var s types.ReviewerStats
		err := client.get(ctx, "/reviewers/"+fmt.Sprintf("reviewer-%02d", i)+"/stats", &s)
		switch {
		case statusOf(err) == http.StatusNotFound:
		case err != nil:
			return nil, fmt.Errorf("reviewer stats: %w", err)
		default:
			total += s.TotalReviewed
		}
	}
	// Counters are global per reviewer, so only a lower bound holds when the
	// service has served earlier runs.
	if total < stats.Reviews {
		rep.fail("reviewer counters total %d, %d reviews were accepted", total, stats.Reviews)
	}
	if want := int64(len(applicants) * cfg.ReviewsRequired); stats.Reviews != want {
		rep.fail("%d reviews accepted, want %d", stats.Reviews, want)
	}

	limit := min(len(applicants), maxQueuePage)
	q := url.Values{"hackathon_id": {cfg.HackathonID}, "limit": {fmt.Sprint(limit)}}
	if err := client.get(ctx, "/acceptance/queue?"+q.Encode(), &rep.Queue); err != nil {
		return nil, fmt.Errorf("queue: %w", err)
	}
	if want := min(stats.Graded, limit); len(rep.Queue) != want {
		rep.fail("queue holds %d entries, want %d", len(rep.Queue), want)
	}
	for i, e := range rep.Queue {
		if e.Rank != i+1 {
			rep.fail("queue entry %d has rank %d", i, e.Rank)
		}
		if pos, ok := positions[e.RegistrationID]; ok && pos != e.Rank {
			rep.fail("%s reports position %d, queue says %d", e.RegistrationID, pos, e.Rank)
		}
		if i > 0 && ranksAfter(rep.Queue[i-1], e) {
			rep.fail("queue out of order at rank %d", e.Rank)
		}
	}
	return rep, nil
}

// ranksAfter reports whether b should precede a.
func ranksAfter(a, b types.QueueEntry) bool {
	if a.Prioritized != b.Prioritized {
		return b.Prioritized
	}
	if a.Mu != b.Mu {
		return b.Mu > a.Mu
	}
	if a.SigmaSquared != b.SigmaSquared {
		return b.SigmaSquared < a.SigmaSquared
	}
	return b.SubmittedAt.Before(a.SubmittedAt)
}

// acceptHead admits the first n queue entries and checks they leave the
// queue with an RSVP deadline.
func acceptHead(ctx context.Context, client *HTTPClient, cfg *Config, rep *Report, stats *Stats) error {
	n := min(cfg.Accept, len(rep.Queue))
	for _, e := range rep.Queue[:n] {
		var reg types.Registration
		err := client.post(ctx, "/registrations/"+url.PathEscape(e.RegistrationID)+"/decision",
			types.DecisionRequest{Status: string(model.StatusAccepted), ActorID: "simulator"}, &reg)
		if err != nil {
			return fmt.Errorf("accept %s: %w", e.RegistrationID, err)
		}
		if reg.RsvpDeadline == nil {
			rep.fail("%s accepted without an rsvp deadline", e.RegistrationID)
		}
		stats.Accepted++
	}
	if n == 0 {
		return nil
	}

	var after []types.QueueEntry
	q := url.Values{"hackathon_id": {cfg.HackathonID}, "limit": {fmt.Sprint(n)}}
	if err := client.get(ctx, "/acceptance/queue?"+q.Encode(), &after); err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	accepted := make(map[string]bool, n)
	for _, e := range rep.Queue[:n] {
		accepted[e.RegistrationID] = true
	}
	for _, e := range after {
		if accepted[e.RegistrationID] {
			rep.fail("%s still queued after acceptance", e.RegistrationID)
		}
	}
	return nil
}
