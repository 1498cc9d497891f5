// Package audit records registration events inside a unit of work and hands
// them to a Publisher once the unit commits.
package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/okian/admit/internal/adapters/repository"
	"github.com/okian/admit/internal/domain/model"
)

// Publisher receives committed events. Publish must not block for long; it
// is called on the request path.
type Publisher interface {
	Publish(ctx context.Context, events ...model.Event)
}

// Discard drops every event.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, ...model.Event) {}

// Batch collects the events written by one attempt of a unit of work. Reset
// it at the start of every attempt so a retried unit does not publish twice.
type Batch struct {
	events []model.Event
}

// Append assigns an id when e has none, writes e through tx and keeps it for
// publishing.
func (b *Batch) Append(ctx context.Context, tx repository.Tx, e model.Event) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if err := tx.AppendEvent(ctx, e); err != nil {
		return err
	}
	b.events = append(b.events, e)
	return nil
}

// Reset forgets collected events.
func (b *Batch) Reset() {
	b.events = b.events[:0]
}

// Events returns the collected events in append order.
func (b *Batch) Events() []model.Event {
	out := make([]model.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Flush publishes the collected events to p and resets the batch.
func (b *Batch) Flush(ctx context.Context, p Publisher) {
	if p != nil && len(b.events) > 0 {
		p.Publish(ctx, b.Events()...)
	}
	b.Reset()
}
