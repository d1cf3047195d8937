package broker

import (
	"context"
	"fmt"

	"restobook/internal/events"
	"restobook/internal/metrics"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EventPublisher puts domain events on a topic exchange, routed by event type.
type EventPublisher struct {
	ch       Channel
	exchange string
}

func NewEventPublisher(ch Channel, exchange string) (*EventPublisher, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &EventPublisher{ch: ch, exchange: exchange}, nil
}

func (p *EventPublisher) Publish(ctx context.Context, e *events.Event) error {
	err := p.ch.PublishWithContext(ctx, p.exchange, e.Type, false, false, amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         e.Type,
		Timestamp:    e.CreatedAt,
		Body:         e.Payload,
	})
	if err != nil {
		metrics.IncBroker("event", "publish_error")
		return fmt.Errorf("failed to publish event %s: %w", e.Type, err)
	}
	metrics.IncBroker("event", "ok")
	return nil
}
