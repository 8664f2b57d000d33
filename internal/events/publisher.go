package events

import (
	"context"

	"go.uber.org/zap"
)

// Publisher delivers events to a sink. Publish is called after the change is
// committed, so a failure never undoes it.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

var _ Publisher = Nop{}

func (Nop) Publish(context.Context, ...Event) error { return nil }

func (Nop) Close() error { return nil }

// LogPublisher writes events to a zap logger. It is the default sink for
// local runs without a broker.
type LogPublisher struct {
	lg *zap.Logger
}

var _ Publisher = (*LogPublisher)(nil)

// NewLogPublisher returns a LogPublisher writing to lg.
func NewLogPublisher(lg *zap.Logger) *LogPublisher {
	return &LogPublisher{lg: lg}
}

func (p *LogPublisher) Publish(_ context.Context, events ...Event) error {
	for _, ev := range events {
		p.lg.Info("Event",
			zap.String("event_id", ev.ID),
			zap.String("event_type", string(ev.Type)),
			zap.String("key", ev.Key),
			zap.Time("occurred_at", ev.OccurredAt),
			zap.ByteString("data", ev.Data),
		)
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }
