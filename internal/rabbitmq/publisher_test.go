package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopsync/internal/config"
	"shopsync/internal/model"
)

type fakeChannel struct {
	exchange   string
	key        string
	msg        amqp.Publishing
	publishErr error
	closed     bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange = exchange
	f.key = key
	f.msg = msg
	return f.publishErr
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type fakeConn struct{ closed bool }

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func newTestPublisher(cfg config.RabbitMQConfig, ch *fakeChannel, conn *fakeConn) *Publisher {
	p := NewPublisher(cfg)
	p.dial = func(context.Context) (channel, io.Closer, error) { return ch, conn, nil }
	return p
}

func TestPublisher_Deliver(t *testing.T) {
	ch, conn := &fakeChannel{}, &fakeConn{}
	p := newTestPublisher(config.RabbitMQConfig{Exchange: "shopify.webhook"}, ch, conn)

	env := &model.OutboundOrderEnvelope{
		ShopDomain: "demo.myshopify.com",
		WebhookID:  "wh-9",
		Topic:      model.TopicOrdersCreate,
		OrderCount: 1,
		Orders:     []model.SyncOrder{{OrderID: 9, OrderName: "#9"}},
	}
	require.NoError(t, p.Deliver(context.Background(), env))

	assert.Equal(t, "shopify.webhook", ch.exchange)
	assert.Equal(t, "orders.create", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, "wh-9", ch.msg.MessageId)
	assert.Equal(t, "orders/create", ch.msg.Headers["x-shopify-topic"])

	var decoded model.OutboundOrderEnvelope
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	assert.Equal(t, "#9", decoded.Orders[0].OrderName)

	assert.True(t, ch.closed)
	assert.True(t, conn.closed)
	assert.Equal(t, "amqp", p.Name())
}

func TestPublisher_FixedRoutingKey(t *testing.T) {
	p := NewPublisher(config.RabbitMQConfig{RoutingKey: "orders"})
	assert.Equal(t, "orders", p.RoutingKey(model.TopicOrdersUpdated))

	p = NewPublisher(config.RabbitMQConfig{})
	assert.Equal(t, "orders.updated", p.RoutingKey(model.TopicOrdersUpdated))
}

func TestPublisher_Errors(t *testing.T) {
	t.Run("publish error", func(t *testing.T) {
		ch, conn := &fakeChannel{publishErr: amqp.ErrClosed}, &fakeConn{}
		p := newTestPublisher(config.RabbitMQConfig{}, ch, conn)

		err := p.Deliver(context.Background(), &model.OutboundOrderEnvelope{Topic: model.TopicOrdersCreate})
		assert.ErrorIs(t, err, amqp.ErrClosed)
		assert.True(t, conn.closed)
	})

	t.Run("dial error", func(t *testing.T) {
		p := NewPublisher(config.RabbitMQConfig{})
		p.dial = func(context.Context) (channel, io.Closer, error) {
			return nil, nil, errors.New("connect to rabbitmq: connection refused")
		}

		err := p.Deliver(context.Background(), &model.OutboundOrderEnvelope{})
		assert.EqualError(t, err, "connect to rabbitmq: connection refused")
	})
}

// silentBroker accepts TCP connections and never writes a byte.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestPublisher_SilentBroker(t *testing.T) {
	env := &model.OutboundOrderEnvelope{Topic: model.TopicOrdersCreate, WebhookID: "wh-1"}

	t.Run("handshake bounded by timeout", func(t *testing.T) {
		p := NewPublisher(config.RabbitMQConfig{URL: silentBroker(t), Timeout: 200 * time.Millisecond})

		start := time.Now()
		err := p.Deliver(context.Background(), env)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connect to rabbitmq")
		assert.Less(t, time.Since(start), 3*time.Second)
	})

	t.Run("caller deadline wins", func(t *testing.T) {
		p := NewPublisher(config.RabbitMQConfig{URL: silentBroker(t), Timeout: time.Minute})

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		err := p.Deliver(ctx, env)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 3*time.Second)
	})
}

func TestNewPublisher_DefaultTimeout(t *testing.T) {
	p := NewPublisher(config.RabbitMQConfig{})
	assert.Equal(t, 10*time.Second, p.timeout)
}
