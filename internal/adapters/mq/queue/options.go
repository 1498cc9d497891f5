package queue

// Option applies a configuration option to the Queue.
type Option func(*Queue)

// WithCapacity sets how many events the queue buffers.
func WithCapacity(capacity int) Option {
	return func(q *Queue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}
