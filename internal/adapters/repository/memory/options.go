package memory

import "time"

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithMetricsUpdateInterval sets the interval for background gauge updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *Store) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithSeed fixes the seed of the rank index priorities.
func WithSeed(seed uint64) Option {
	return func(s *Store) {
		s.seed = seed
		s.seeded = true
	}
}
