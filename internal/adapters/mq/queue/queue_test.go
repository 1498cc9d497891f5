package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/admit/internal/domain/model"
)

func event(id string) model.Event {
	return model.Event{EventID: id, Kind: model.EventReviewSubmitted, RegistrationID: "r1"}
}

func TestQueue_BasicOperations(t *testing.T) {
	q := New(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if err := q.Enqueue(ctx, event("e1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if l := q.Len(); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	got := <-q.Dequeue(dctx)
	if got.EventID != "e1" {
		t.Errorf("expected e1, got %q", got.EventID)
	}
}

func TestQueue_Capacity(t *testing.T) {
	q := New(WithCapacity(2))
	ctx := context.Background()

	for _, id := range []string{"e1", "e2"} {
		if err := q.Enqueue(ctx, event(id)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	if err := q.Enqueue(ctx, event("e3")); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if l := q.Len(); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestQueue_CloseDrains(t *testing.T) {
	q := New(WithCapacity(4))
	ctx := context.Background()

	for _, id := range []string{"e1", "e2", "e3"} {
		if err := q.Enqueue(ctx, event(id)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}
	if err := q.Enqueue(ctx, event("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	var ids []string
	for e := range q.Dequeue(ctx) {
		ids = append(ids, e.EventID)
	}
	if fmt.Sprint(ids) != "[e1 e2 e3]" {
		t.Errorf("expected buffered events in order, got %v", ids)
	}
}

func TestQueue_CancelledContext(t *testing.T) {
	q := New(WithCapacity(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Enqueue(ctx, event("e1")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	select {
	case _, ok := <-q.Dequeue(ctx):
		if ok {
			t.Error("expected no event from a cancelled consumer")
		}
	case <-time.After(time.Second):
		t.Error("dequeue channel did not close")
	}
}

func TestQueue_ConcurrentConsumers(t *testing.T) {
	const producers, perProducer, consumers = 8, 50, 4
	q := New(WithCapacity(producers * perProducer))
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := q.Enqueue(ctx, event(fmt.Sprintf("p%d-%d", p, i))); err != nil {
					t.Errorf("enqueue: %v", err)
				}
			}
		}(p)
	}
	wg.Wait()
	_ = q.Close()

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
	)
	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range q.Dequeue(ctx) {
				mu.Lock()
				seen[e.EventID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != producers*perProducer {
		t.Fatalf("expected %d distinct events, got %d", producers*perProducer, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("event %s delivered %d times", id, n)
		}
	}
}
