package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/ports"
)

const (
	// SessionTopic carries core.SessionEvent payloads
	SessionTopic = "memowallet.session"

	// EventTypeKey is the message metadata key holding the event type
	EventTypeKey = "event_type"
)

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     SessionTopic,
	}
}

// PublishSessionEvent publishes a session lifecycle event
func (p *WatermillPublisher) PublishSessionEvent(ctx context.Context, event core.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(EventTypeKey, string(event.Type))
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// DecodeSessionEvent decodes a message published by WatermillPublisher
func DecodeSessionEvent(msg *message.Message) (core.SessionEvent, error) {
	var event core.SessionEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal event %s: %w", msg.UUID, err)
	}
	return event, nil
}
