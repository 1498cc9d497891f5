// Package dedupe remembers event ids so each audit event is delivered to
// notifiers at most once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

// DefaultMaxSize bounds the window when no size is configured.
const DefaultMaxSize = 50_000

// Deduper records seen event IDs.
type Deduper interface {
	// SeenAndRecord reports whether id was already recorded and records it
	// if not. The check and the record are one atomic step.
	SeenAndRecord(ctx context.Context, id string) bool

	// Forget drops id so a later SeenAndRecord treats it as new.
	Forget(ctx context.Context, id string)

	Size() int
}

// Option applies a configuration option to the Window.
type Option func(*Window)

// WithMaxSize sets how many ids the window keeps. When full, the oldest id
// is evicted. Zero or negative sizes make the window unbounded.
func WithMaxSize(n int) Option {
	return func(w *Window) {
		w.maxSize = n
	}
}

// Window is an in-memory Deduper that keeps the most recent ids in
// insertion order.
type Window struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front is oldest
	maxSize int
}

var _ Deduper = (*Window)(nil)

// New constructs a Window.
func New(opts ...Option) *Window {
	w := &Window{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		maxSize: DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SeenAndRecord implements Deduper.
func (w *Window) SeenAndRecord(_ context.Context, id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[id]; ok {
		return true
	}
	if w.maxSize > 0 && w.order.Len() >= w.maxSize {
		oldest := w.order.Front()
		w.order.Remove(oldest)
		delete(w.seen, oldest.Value.(string))
	}
	w.seen[id] = w.order.PushBack(id)
	return false
}

// Forget implements Deduper.
func (w *Window) Forget(_ context.Context, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if el, ok := w.seen[id]; ok {
		w.order.Remove(el)
		delete(w.seen, id)
	}
}

// Size returns the number of remembered ids.
func (w *Window) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.order.Len()
}
