package notify

import (
	"context"
	"log/slog"
)

// Channel is an internal (non-webhook) notification target: admin feeds,
// user notifications. Implementations must not block the caller.
type Channel interface {
	Notify(ctx context.Context, event string, data any)
}

// LogChannel writes internal notifications to the structured log. It
// stands in for the external email/notification system, which is a
// collaborator outside this service.
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel creates a log-backed channel
func NewLogChannel(logger *slog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Notify logs the event
func (c *LogChannel) Notify(_ context.Context, event string, data any) {
	c.logger.Info("internal notification",
		slog.String("event", event),
		slog.Any("data", data),
	)
}
