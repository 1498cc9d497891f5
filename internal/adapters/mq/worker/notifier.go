package worker

import (
	"context"

	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/pkg/logger"
)

// Notifier delivers one committed event to the outside world (mail, chat,
// webhooks). Delivery is attempted once.
type Notifier interface {
	Notify(ctx context.Context, e model.Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, e model.Event) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, e model.Event) error { return f(ctx, e) } //nolint:gocritic // hugeParam

// LogNotifier writes each event as a structured log line.
type LogNotifier struct {
	Logger logger.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam
	l := n.Logger
	if l == nil {
		l = logger.Named("notifier")
	}
	l.Info(ctx, "event",
		logger.String("event_id", e.EventID),
		logger.String("kind", string(e.Kind)),
		logger.String("registration_id", e.RegistrationID),
		logger.String("hackathon_id", e.HackathonID),
		logger.String("applicant_id", e.ApplicantID),
		logger.String("actor_id", e.ActorID),
		logger.String("from", e.From),
		logger.String("to", e.To),
		logger.String("detail", e.Detail),
		logger.Time("occurred_at", e.OccurredAt),
	)
	return nil
}
