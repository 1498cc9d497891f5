package storetest

import (
	"context"
	"sync"

	"github.com/okian/admit/internal/adapters/repository"
)

// HookStore wraps a store and runs a hook inside one chosen unit of work,
// after its body succeeded and before it commits. Tests use it to land a
// competing commit in the window an optimistic store must guard.
type HookStore struct {
	repository.Store

	mu    sync.Mutex
	units int
	fire  int
	hook  func()
}

// NewHookStore wraps inner.
func NewHookStore(inner repository.Store) *HookStore {
	return &HookStore{Store: inner}
}

// Arm runs hook inside the n-th unit of work started from now on, counting
// from 1. The hook fires once.
func (h *HookStore) Arm(n int, hook func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fire = h.units + n
	h.hook = hook
}

// Units reports how many units of work have started.
func (h *HookStore) Units() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.units
}

// Atomic implements repository.Store.
func (h *HookStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	h.mu.Lock()
	h.units++
	var hook func()
	if h.hook != nil && h.units == h.fire {
		hook, h.hook = h.hook, nil
	}
	h.mu.Unlock()

	if hook == nil {
		return h.Store.Atomic(ctx, fn)
	}
	return h.Store.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		hook()
		return nil
	})
}
