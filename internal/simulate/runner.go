package simulate

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/okian/admit/pkg/logger"
)

// Run executes one simulation against cfg.BaseURL and writes the report to
// out. It fails when the service is unreachable or an invariant is violated.
func Run(ctx context.Context, cfg *Config, out io.Writer) (*Stats, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.HackathonID == "" {
		cfg.HackathonID = "sim-" + uuid.NewString()[:8]
	}

	stats := &Stats{StartTime: time.Now()}
	log := logger.Named("simulate")
	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("hackathon_id", cfg.HackathonID),
		logger.Int("applicants", cfg.Applicants),
		logger.Int("reviewers", cfg.Reviewers),
		logger.Int("reviewsRequired", cfg.ReviewsRequired),
		logger.Float64("noise", cfg.Noise),
	)

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	g := newGrader(cfg.Seed, cfg.Noise)
	applicants, err := seedApplicants(ctx, client, cfg, g, stats)
	if err != nil {
		return stats, fmt.Errorf("seeding failed: %w", err)
	}

	if err := runReviewers(ctx, client, cfg, applicants, g, stats); err != nil {
		return stats, fmt.Errorf("reviewers failed: %w", err)
	}

	rep, err := verify(ctx, client, cfg, applicants, stats)
	if err != nil {
		return stats, fmt.Errorf("verification failed: %w", err)
	}
	if err := acceptHead(ctx, client, cfg, rep, stats); err != nil {
		return stats, fmt.Errorf("acceptance failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	render(out, cfg, applicants, rep, stats)

	log.Info(ctx, "simulation finished",
		logger.Int("graded", stats.Graded),
		logger.Int64("reviews", stats.Reviews),
		logger.Int("problems", len(rep.Problems)),
		logger.Duration("duration", stats.Duration),
	)
	return stats, rep.Err()
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	if err := client.get(ctx, "/healthz", nil); err != nil {
		return fmt.Errorf("failed to reach service: %w", err)
	}
	return nil
}
