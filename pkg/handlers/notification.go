package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/escalate/pkg/eventbus"
	"github.com/dukex/escalate/pkg/events"
	"github.com/google/uuid"
)

// Notification publishes a notification.requested event for the delivery
// service subscribed to the bus.
type Notification struct {
	publisher eventbus.EventPublisher
}

func NewNotification(publisher eventbus.EventPublisher) *Notification {
	return &Notification{publisher: publisher}
}

func (n *Notification) Handle(ctx context.Context, params map[string]string, _ map[string]any) (any, map[string]any, error) {
	var values [3]string

	for i, name := range []string{"channel", "target", "message"} {
		value, err := required(params, name)
		if err != nil {
			return nil, nil, err
		}

		values[i] = value
	}

	event := events.NotificationRequested{
		BaseEvent: events.BaseEvent{
			ID:        uuid.NewString(),
			Type:      events.NotificationRequestedEvent,
			Timestamp: time.Now().UTC(),
		},
		Channel: values[0],
		Target:  values[1],
		Message: values[2],
	}

	if err := n.publisher.Publish(ctx, event.Target, event); err != nil {
		return nil, nil, fmt.Errorf("failed to publish notification: %w", err)
	}

	return map[string]any{
		"notification_id": event.ID,
		"channel":         event.Channel,
		"target":          event.Target,
	}, nil, nil
}
