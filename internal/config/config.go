// Package config defines service configuration structures and loading hooks.
package config

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the storage collaborator: memory or postgres.
	StoreDriver string `koanf:"store_driver"`

	// PostgresDSN is required when StoreDriver is postgres.
	PostgresDSN string `koanf:"postgres_dsn"`

	// PostgresAutoMigrate creates missing tables at startup.
	PostgresAutoMigrate bool `koanf:"postgres_auto_migrate"`

	// ReviewsRequired is the number of reviews that grades a registration.
	ReviewsRequired int `koanf:"reviews_required"`

	// PriorMean and PriorVariance seed every new applicant belief.
	PriorMean     float64 `koanf:"prior_mean"`
	PriorVariance float64 `koanf:"prior_variance"`

	// Observation model per grade.
	TopObservationMean        float64 `koanf:"top_observation_mean"`
	TopObservationVariance    float64 `koanf:"top_observation_variance"`
	MiddleObservationMean     float64 `koanf:"middle_observation_mean"`
	MiddleObservationVariance float64 `koanf:"middle_observation_variance"`
	BottomObservationMean     float64 `koanf:"bottom_observation_mean"`
	BottomObservationVariance float64 `koanf:"bottom_observation_variance"`

	// RsvpWindow is how long an accepted applicant has to confirm.
	RsvpWindow time.Duration `koanf:"rsvp_window"`

	// ExpirySweepInterval is the period of the RSVP expiry sweeper. Zero
	// disables the sweeper.
	ExpirySweepInterval time.Duration `koanf:"expiry_sweep_interval"`

	// MaxTxRetries bounds retries after concurrency conflicts.
	MaxTxRetries int `koanf:"max_tx_retries"`

	// WorkerCount sets the number of event dispatcher workers.
	WorkerCount int `koanf:"worker_count"`

	// EventQueueSize bounds the in-memory event queue.
	EventQueueSize int `koanf:"queue_size"`

	// DedupeSize sets how many event ids the dispatcher remembers.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxQueueLimit caps GET /acceptance/queue?limit.
	MaxQueueLimit int `koanf:"max_queue_limit"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:                  "info",
		Addr:                      ":9080",
		StoreDriver:               DriverMemory,
		PostgresAutoMigrate:       true,
		ReviewsRequired:           3,
		PriorMean:                 0,
		PriorVariance:             1,
		TopObservationMean:        1,
		TopObservationVariance:    0.5,
		MiddleObservationMean:     0,
		MiddleObservationVariance: 0.5,
		BottomObservationMean:     -1,
		BottomObservationVariance: 0.5,
		RsvpWindow:                48 * time.Hour,
		ExpirySweepInterval:       time.Minute,
		MaxTxRetries:              5,
		WorkerCount:               runtime.NumCPU(),
		EventQueueSize:            10_000,
		DedupeSize:                100_000,
		MaxQueueLimit:             500,
	}
}

// Validate reports every invalid field, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []error
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Addr) == "" {
		bad("addr must not be empty")
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			bad("postgres_dsn is required for the postgres driver")
		}
	default:
		bad("store_driver %q is not one of memory, postgres", c.StoreDriver)
	}
	if c.ReviewsRequired < 1 {
		bad("reviews_required must be at least 1, got %d", c.ReviewsRequired)
	}
	if !finite(c.PriorMean) {
		bad("prior_mean must be finite")
	}
	for name, v := range map[string]float64{
		"prior_variance":              c.PriorVariance,
		"top_observation_variance":    c.TopObservationVariance,
		"middle_observation_variance": c.MiddleObservationVariance,
		"bottom_observation_variance": c.BottomObservationVariance,
	} {
		if !finite(v) || v <= 0 {
			bad("%s must be positive and finite, got %v", name, v)
		}
	}
	for name, v := range map[string]float64{
		"top_observation_mean":    c.TopObservationMean,
		"middle_observation_mean": c.MiddleObservationMean,
		"bottom_observation_mean": c.BottomObservationMean,
	} {
		if !finite(v) {
			bad("%s must be finite", name)
		}
	}
	if c.RsvpWindow <= 0 {
		bad("rsvp_window must be positive, got %s", c.RsvpWindow)
	}
	if c.ExpirySweepInterval < 0 {
		bad("expiry_sweep_interval must not be negative")
	}
	if c.MaxTxRetries < 1 {
		bad("max_tx_retries must be at least 1")
	}
	if c.WorkerCount < 1 {
		bad("worker_count must be at least 1")
	}
	if c.EventQueueSize < 1 {
		bad("queue_size must be at least 1")
	}
	if c.MaxQueueLimit < 1 {
		bad("max_queue_limit must be at least 1")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
