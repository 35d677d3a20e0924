package workflow

import (
	"context"
	"fmt"

	"flowops/internal/logging"
	"flowops/internal/notifications"
)

// safePublish hands ev to publisher and converts a panic into an error.
func safePublish(ctx context.Context, publisher notifications.Publisher, ev notifications.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publish %s: panic: %v", ev.Kind(), r)
		}
	}()
	publisher.Publish(ctx, ev)
	return nil
}

// publish runs after a committed save; a failing publisher is logged and
// never turns the operation into an error.
func (m *Manager) publish(ctx context.Context, ev notifications.Event) {
	if err := safePublish(ctx, m.publisher, ev); err != nil {
		logging.WarnWithContext(m.opLogger(ctx), "event publish failed", "event_publish_failed",
			logging.String(logging.FieldEventKind, string(ev.Kind())),
			logging.String(logging.FieldImpact, "developer will not receive this notification"),
			logging.Error(err),
		)
	}
}
