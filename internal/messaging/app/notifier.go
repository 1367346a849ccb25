package app

import (
	"context"
	"time"

	"school_messaging_service/internal/messaging/domain"
	"school_messaging_service/pkg/logger"

	"go.uber.org/zap"
)

// notifier publish change events after a commit. The write already
// succeeded, so a publish failure is logged and not returned.
type notifier struct {
	feed domain.ChangeFeed
}

func (n notifier) publish(ctx context.Context, topic string, entity domain.Entity, op domain.Operation, affectedID string) {
	if n.feed == nil {
		return
	}
	event := domain.ChangeEvent{
		Topic:      topic,
		Entity:     entity,
		Operation:  op,
		AffectedID: affectedID,
		Timestamp:  now(),
	}
	if err := n.feed.Publish(ctx, event); err != nil {
		logger.Log.Warn("change event publish failed",
			zap.String("topic", topic),
			zap.String("entity", string(entity)),
			zap.String("affected_id", affectedID),
			zap.Error(err),
		)
	}
}

// now storage precision clock
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func emit(sink domain.TelemetrySink, event domain.TelemetryEvent) {
	if sink == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now()
	}
	sink.Emit(event)
}
