// Package simulate drives a running admit service with a synthetic review
// load over HTTP and checks the engine's invariants afterwards.
package simulate

import (
	"errors"
	"time"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL         string        // Base URL of the service
	HackathonID     string        // Generated when empty
	Applicants      int           // Registrations to seed
	Reviewers       int           // Concurrent reviewers
	ReviewsRequired int           // Must match the service's reviews_required
	Noise           float64       // Probability a reviewer misjudges by one grade
	Seed            uint64        // Random seed; 0 picks one from the clock
	TopN            int           // Queue entries to print
	Accept          int           // Head-of-queue applicants to accept at the end
	Timeout         time.Duration // HTTP request timeout
	Verbose         bool          // Enable verbose logging
}

// ErrInvalidConfig is returned for settings a run cannot work with.
var ErrInvalidConfig = errors.New("invalid simulation config")

func (c *Config) validate() error {
	var problems []error
	if c.BaseURL == "" {
		problems = append(problems, errors.New("base url is required"))
	}
	if c.Applicants < 1 {
		problems = append(problems, errors.New("applicants must be at least 1"))
	}
	if c.ReviewsRequired < 1 {
		problems = append(problems, errors.New("reviews required must be at least 1"))
	}
	if c.Reviewers < c.ReviewsRequired {
		problems = append(problems, errors.New("reviewers must be at least reviews required"))
	}
	if c.Noise < 0 || c.Noise > 1 {
		problems = append(problems, errors.New("noise must be within [0, 1]"))
	}
	if c.Accept < 0 || c.TopN < 0 {
		problems = append(problems, errors.New("accept and top must not be negative"))
	}
	if len(problems) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, problems...)...)
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	Seeded            int
	Assignments       int64
	Reviews           int64
	DuplicateRejected int64
	Retries           int64
	Failures          int64
	Graded            int
	Accepted          int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
