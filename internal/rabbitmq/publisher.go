package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"shopsync/internal/config"
	"shopsync/internal/model"
	"shopsync/pkg/log"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(ctx context.Context) (channel, io.Closer, error)

// Publisher relays order envelopes to a RabbitMQ exchange. It dials per
// publish, so an unreachable broker only fails the current delivery.
type Publisher struct {
	exchange   string
	routingKey string
	timeout    time.Duration
	dial       dialFunc
}

// NewPublisher creates a publisher for cfg. An empty routing key means the
// webhook topic in dotted form, e.g. orders.create. Every delivery,
// including the connect and AMQP handshake, is bounded by cfg.Timeout.
func NewPublisher(cfg config.RabbitMQConfig) *Publisher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Publisher{
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		timeout:    timeout,
		dial:       brokerDialer(cfg.URL, timeout),
	}
}

type dialResult struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	err  error
}

// brokerDialer connects with amqp.DefaultDial, which puts a deadline on the
// TCP connect and the handshake. The caller stops waiting when ctx ends; a
// connection that completes afterwards is closed.
func brokerDialer(url string, timeout time.Duration) dialFunc {
	return func(ctx context.Context) (channel, io.Closer, error) {
		done := make(chan dialResult, 1)
		go func() {
			conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(timeout)})
			if err != nil {
				done <- dialResult{err: fmt.Errorf("connect to rabbitmq: %w", err)}
				return
			}
			ch, err := conn.Channel()
			if err != nil {
				conn.Close()
				done <- dialResult{err: fmt.Errorf("open rabbitmq channel: %w", err)}
				return
			}
			done <- dialResult{conn: conn, ch: ch}
		}()

		select {
		case r := <-done:
			if r.err != nil {
				return nil, nil, r.err
			}
			return r.ch, r.conn, nil
		case <-ctx.Done():
			go func() {
				if r := <-done; r.conn != nil {
					r.conn.Close()
				}
			}()
			return nil, nil, fmt.Errorf("connect to rabbitmq: %w", ctx.Err())
		}
	}
}

// RoutingKey returns the key used for topic.
func (p *Publisher) RoutingKey(topic model.WebhookTopic) string {
	if p.routingKey != "" {
		return p.routingKey
	}
	return strings.ReplaceAll(topic.Header(), "/", ".")
}

// Deliver publishes the envelope as a persistent JSON message.
func (p *Publisher) Deliver(ctx context.Context, envelope *model.OutboundOrderEnvelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode order envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ch, conn, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer ch.Close()

	key := p.RoutingKey(envelope.Topic)
	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    envelope.WebhookID,
		Headers: amqp.Table{
			"x-shopify-shop-domain": envelope.ShopDomain,
			"x-shopify-topic":       envelope.Topic.Header(),
			"x-shopify-webhook-id":  envelope.WebhookID,
		},
	})
	if err != nil {
		return fmt.Errorf("publish to rabbitmq: %w", err)
	}

	log.WithFields(log.Fields{
		"exchange":   p.exchange,
		"key":        key,
		"webhook_id": envelope.WebhookID,
	}).Debug("Published order to RabbitMQ")
	return nil
}

// Name identifies the sink in logs and metrics.
func (p *Publisher) Name() string { return "amqp" }
