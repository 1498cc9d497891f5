package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/admit/internal/simulate"
	"github.com/okian/admit/pkg/logger"
)

// Default configuration constants.
const (
	defaultApplicants = 200
	defaultReviewers  = 8
	defaultReviews    = 3
	defaultNoise      = 0.2
	defaultTopN       = 20
	defaultAccept     = 5
	defaultTimeout    = 10 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		hackathon  = flag.String("hackathon", "", "Hackathon id (default: generated)")
		applicants = flag.Int("applicants", defaultApplicants, "Registrations to seed")
		reviewers  = flag.Int("reviewers", defaultReviewers, "Concurrent reviewers")
		reviews    = flag.Int("reviews", defaultReviews, "Reviews per registration; must match the service")
		noise      = flag.Float64("noise", defaultNoise, "Probability a reviewer misjudges by one grade")
		seed       = flag.Uint64("seed", 0, "Random seed (default: from the clock)")
		topN       = flag.Int("top", defaultTopN, "Queue entries to print")
		accept     = flag.Int("accept", defaultAccept, "Head-of-queue applicants to accept")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		verbose    = flag.Bool("verbose", false, "Log progress every second")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	if err := logger.Init(logger.WithLevel(level)); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	_, err := simulate.Run(ctx, &simulate.Config{
		BaseURL:         *baseURL,
		HackathonID:     *hackathon,
		Applicants:      *applicants,
		Reviewers:       *reviewers,
		ReviewsRequired: *reviews,
		Noise:           *noise,
		Seed:            *seed,
		TopN:            *topN,
		Accept:          *accept,
		Timeout:         *timeout,
		Verbose:         *verbose,
	}, os.Stdout)
	if err != nil {
		_, _ = os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
