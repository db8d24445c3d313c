package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// PubSubSender publishes tracking events to the order tracking topic.
type PubSubSender struct {
	publisher *pubsub.Publisher
}

// NewPubSubSender wraps an order tracking publisher.
func NewPubSubSender(publisher *pubsub.Publisher) (*PubSubSender, error) {
	if publisher == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	return &PubSubSender{publisher: publisher}, nil
}

// Send publishes one event and waits for broker acknowledgement.
func (s *PubSubSender) Send(ctx context.Context, event TrackingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal tracking event: %w", err)
	}

	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"order_id":    event.OrderID.String(),
			"user_id":     event.UserID.String(),
			"stage":       event.Stage.String(),
			"occurred_at": event.OccurredAt.Format(time.RFC3339Nano),
		},
	}

	result := s.publisher.Publish(ctx, msg)
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish tracking event: %w", err)
	}
	return nil
}
