package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"market-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishPurchaseQualified publishes a PurchaseQualified event
func (ep *EventPublisher) PublishPurchaseQualified(ctx context.Context, event *models.PurchaseQualifiedEvent) error {
	key := fmt.Sprintf("user-%s", event.UserID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishOrderSettled publishes an OrderSettled event
func (ep *EventPublisher) PublishOrderSettled(ctx context.Context, event *models.OrderSettledEvent) error {
	key := fmt.Sprintf("user-%s", event.UserID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishOrderRefunded publishes an OrderRefunded event
func (ep *EventPublisher) PublishOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error {
	key := fmt.Sprintf("user-%s", event.UserID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming events to registered handlers
type EventHandler struct {
	onPurchaseQualified func(context.Context, *models.PurchaseQualifiedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnPurchaseQualified registers a handler for PurchaseQualified events
func (eh *EventHandler) OnPurchaseQualified(handler func(context.Context, *models.PurchaseQualifiedEvent) error) {
	eh.onPurchaseQualified = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypePurchaseQualified:
		if eh.onPurchaseQualified != nil {
			var event models.PurchaseQualifiedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PurchaseQualified event: %w", err)
			}
			return eh.onPurchaseQualified(ctx, &event)
		}

	case models.EventTypeOrderSettled, models.EventTypeOrderRefunded:
		// Published for downstream consumers, nothing to do here

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
