package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"shopsync/internal/model"
	"shopsync/internal/service/relay"
	"shopsync/pkg/log"
	"shopsync/pkg/queue"
)

// OrderWebhookTopic is the queue topic carrying verified order webhooks.
const OrderWebhookTopic = "shopify_order_webhooks"

// OrderRelay handles one order webhook event.
type OrderRelay interface {
	OnOrderEvent(ctx context.Context, event model.OrderWebhookEvent) relay.DeliveryState
}

// WebhookConsumer drains order webhooks from the queue into the relay.
type WebhookConsumer struct {
	relay   OrderRelay
	queue   queue.Queue
	workers int
}

// NewWebhookConsumer creates a webhook consumer
func NewWebhookConsumer(r OrderRelay, q queue.Queue, workers int) *WebhookConsumer {
	if workers <= 0 {
		workers = 1
	}
	return &WebhookConsumer{
		relay:   r,
		queue:   q,
		workers: workers,
	}
}

// Start subscribes the relay workers. Workers exit when ctx is cancelled or
// the queue is closed and drained.
func (c *WebhookConsumer) Start(ctx context.Context) error {
	log.WithField("workers", c.workers).Info("Starting webhook consumer")
	return c.queue.Subscribe(ctx, OrderWebhookTopic, c.workers, c.handle)
}

func (c *WebhookConsumer) handle(ctx context.Context, _ string, message []byte) error {
	var event model.OrderWebhookEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return fmt.Errorf("decode webhook event: %w", err)
	}
	c.relay.OnOrderEvent(ctx, event)
	return nil
}

// Dispatcher hands verified webhooks to the queue.
type Dispatcher struct {
	queue queue.Queue
}

// NewDispatcher creates a dispatcher
func NewDispatcher(q queue.Queue) *Dispatcher {
	return &Dispatcher{queue: q}
}

// Dispatch enqueues event without waiting for delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, event model.OrderWebhookEvent) error {
	message, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode webhook event: %w", err)
	}
	return d.queue.Publish(ctx, OrderWebhookTopic, message)
}
