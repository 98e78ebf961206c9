package events

import (
	"context"
	"log/slog"
)

// LoggingPublisher emits lifecycle events to structured logs. It stands in
// for a broker in environments that do not run one; the outbox rows still
// record delivery state, so swapping in a real publisher later needs no
// schema change.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, eventType string, payload []byte) error {
	p.logger.InfoContext(ctx, "auth event published",
		"module", "events.publisher",
		"layer", "adapter",
		"operation", "publish_event",
		"outcome", "success",
		"event_type", eventType,
		"payload", string(payload),
	)
	return nil
}
