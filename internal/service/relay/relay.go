package relay

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"shopsync/internal/model"
	"shopsync/pkg/log"
)

var tracer = otel.Tracer("shopsync/relay")

// DeliveryState is the terminal state of one relay invocation.
type DeliveryState string

const (
	StateReceived       DeliveryState = "received"
	StateParsed         DeliveryState = "parsed"
	StateTransformed    DeliveryState = "transformed"
	StateDelivered      DeliveryState = "delivered"
	StateDeliveryFailed DeliveryState = "delivery_failed"
	StateParseFailed    DeliveryState = "parse_failed"
	StateIgnored        DeliveryState = "ignored"
)

// Sink delivers one order envelope downstream.
type Sink interface {
	Deliver(ctx context.Context, envelope *model.OutboundOrderEnvelope) error
	Name() string
}

// Recorder receives relay metrics.
type Recorder interface {
	ObserveRelay(topic string, state string)
	ObserveRedelivery(topic string)
}

// Relay forwards order webhooks to the warehouse.
type Relay struct {
	sink         Sink
	redeliveries *RedeliveryDetector
	recorder     Recorder
	now          func() time.Time
}

// NewRelay creates a relay. detector and recorder may be nil.
func NewRelay(sink Sink, detector *RedeliveryDetector, recorder Recorder) *Relay {
	return &Relay{
		sink:         sink,
		redeliveries: detector,
		recorder:     recorder,
		now:          time.Now,
	}
}

// OnOrderEvent parses, transforms and delivers one order webhook. Delivery
// is attempted once; failures are logged and reflected in the returned
// state, never returned to the caller.
func (r *Relay) OnOrderEvent(ctx context.Context, event model.OrderWebhookEvent) DeliveryState {
	ctx, span := tracer.Start(ctx, "relay.order_event")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.topic", string(event.Topic)),
		attribute.String("webhook.id", event.WebhookID),
		attribute.String("shop.domain", event.ShopDomain),
	)

	state := r.process(ctx, event)
	span.SetAttributes(attribute.String("relay.state", string(state)))
	if r.recorder != nil {
		r.recorder.ObserveRelay(string(event.Topic), string(state))
	}
	return state
}

func (r *Relay) process(ctx context.Context, event model.OrderWebhookEvent) DeliveryState {
	logger := log.WithFields(log.Fields{
		"topic":      event.Topic,
		"shop":       event.ShopDomain,
		"webhook_id": event.WebhookID,
	})

	if !event.Topic.IsOrderTopic() {
		logger.Warn("Ignoring webhook with unsupported topic")
		return StateIgnored
	}

	if r.redeliveries.Seen(event.WebhookID) {
		logger.Warn("Probable webhook redelivery")
		if r.recorder != nil {
			r.recorder.ObserveRedelivery(string(event.Topic))
		}
	}

	order, err := ParseOrder(event.RawOrder)
	if err != nil {
		logger.WithError(err).Error("Failed to parse order webhook body")
		return StateParseFailed
	}
	logger = logger.WithField("order", order.Name)

	envelope := BuildEnvelope(event, TransformOrder(order), r.now())

	if err := r.sink.Deliver(ctx, envelope); err != nil {
		logger.WithError(err).WithField("sink", r.sink.Name()).Error("Failed to deliver order")
		return StateDeliveryFailed
	}

	logger.WithField("sink", r.sink.Name()).Info("Order delivered")
	return StateDelivered
}
