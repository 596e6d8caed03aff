package services

import (
	"context"
	"log/slog"

	"bookkeeper/internal/amqp"
	applog "bookkeeper/internal/log"
)

// Publisher delivers change events. *amqp.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, ev *amqp.ChangeEvent) error
}

// publish sends ev after the transaction committed. Failures are logged and
// never undo the commit.
func publish(ctx context.Context, p Publisher, ev *amqp.ChangeEvent) {
	if p == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping change event", "type", ev.Type)
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish change event",
			"type", ev.Type,
			applog.FieldGroupID, ev.GroupID,
			applog.FieldError, err)
	}
}
