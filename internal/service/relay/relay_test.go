package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"shopsync/internal/model"
)

// MockSink mock order sink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Deliver(ctx context.Context, envelope *model.OutboundOrderEnvelope) error {
	args := m.Called(ctx, envelope)
	return args.Error(0)
}

func (m *MockSink) Name() string { return "mock" }

type stateRecorder struct {
	mu           sync.Mutex
	states       []string
	redeliveries int
}

func (s *stateRecorder) ObserveRelay(_ string, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *stateRecorder) ObserveRedelivery(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redeliveries++
}

const fullOrder = `{
  "id": 820982911946154500,
  "name": "#1001",
  "email": "jon@example.com",
  "total_price": "199.00",
  "subtotal_price": "189.00",
  "total_tax": "0.00",
  "total_shipping_price_set": {"shop_money": {"amount": "10.00", "currency_code": "USD"}},
  "currency": "USD",
  "fulfillment_status": null,
  "financial_status": "paid",
  "processed_at": "2024-01-01T10:00:00-05:00",
  "created_at": "2024-01-01T10:00:00-05:00",
  "updated_at": "2024-01-01T10:05:00-05:00",
  "customer": {"id": 115310627314723950, "first_name": "Jon", "last_name": "Snow", "email": "jon@example.com", "phone": null},
  "shipping_address": {"address1": "1 Wall", "city": "Winterfell", "zip": "00001"},
  "billing_address": {"address1": "1 Wall", "city": "Winterfell"},
  "line_items": [
    {"id": 1, "title": "Cloak", "quantity": 2, "variant_id": 44, "variant_title": "Black", "sku": "CLOAK-BLK", "price": "89.50", "product_id": 7, "product_title": null, "product_type": "Apparel", "vendor": "Night's Watch"},
    {"id": 2, "title": "Custom engraving", "quantity": 1, "variant_id": null, "sku": null, "price": "10.00", "product_id": null}
  ]
}`

func orderEvent(topic model.WebhookTopic, body string) model.OrderWebhookEvent {
	return model.OrderWebhookEvent{
		Topic:      topic,
		ShopDomain: "demo.myshopify.com",
		WebhookID:  "wh-1",
		RawOrder:   []byte(body),
		ReceivedAt: time.Now(),
	}
}

func TestTransformOrder_FullPayload(t *testing.T) {
	order, err := ParseOrder([]byte(fullOrder))
	require.NoError(t, err)

	got := TransformOrder(order)
	assert.Equal(t, int64(820982911946154500), got.OrderID)
	assert.Equal(t, "#1001", got.OrderName)
	assert.Equal(t, "199.00", *got.TotalPrice)
	assert.Equal(t, "10.00", got.TotalShipping)
	assert.Equal(t, "USD", *got.CurrencyCode)
	assert.Nil(t, got.FulfillmentStatus)
	assert.Equal(t, "paid", *got.FinancialStatus)

	require.NotNil(t, got.Customer)
	assert.Equal(t, "Jon", *got.Customer.FirstName)
	assert.Nil(t, got.Customer.Phone)

	assert.JSONEq(t, `{"address1": "1 Wall", "city": "Winterfell", "zip": "00001"}`, string(got.ShippingAddress))

	require.Len(t, got.LineItems, 2)
	first := got.LineItems[0]
	require.NotNil(t, first.Variant)
	assert.Equal(t, "gid://shopify/ProductVariant/44", first.Variant.ID)
	assert.Equal(t, "CLOAK-BLK", *first.Variant.SKU)
	assert.Equal(t, "89.50", first.Variant.Price)
	require.NotNil(t, first.Product)
	assert.Equal(t, "gid://shopify/Product/7", first.Product.ID)
	assert.Equal(t, "Cloak", first.Product.Title)
	assert.Equal(t, "Apparel", *first.Product.ProductType)

	second := got.LineItems[1]
	assert.Nil(t, second.Variant)
	assert.Nil(t, second.Product)
}

func TestTransformOrder_MinimalPayload(t *testing.T) {
	order, err := ParseOrder([]byte(`{"id": 1, "name": "#1", "customer": null}`))
	require.NoError(t, err)

	got := TransformOrder(order)
	assert.Nil(t, got.Customer)
	assert.Equal(t, "0", got.TotalShipping)
	assert.NotNil(t, got.LineItems)
	assert.Empty(t, got.LineItems)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Nil(t, decoded["customer"])
	assert.Nil(t, decoded["shippingAddress"])
	assert.Nil(t, decoded["billingAddress"])
	assert.Equal(t, []any{}, decoded["lineItems"])
}

func TestParseOrder_RejectsMalformedBodies(t *testing.T) {
	cases := map[string]string{
		"null":       "order",
		"[1]":        "order",
		`"order"`:    "order",
		`{"id":"x"}`: "order",
		`{}`:         "id",
		`{"foo":1}`:  "id",
		`{"id":-4}`:  "id",
		"  \n":       "order",
	}
	for body, field := range cases {
		order, err := ParseOrder([]byte(body))
		assert.Nil(t, order, body)
		var vErr *model.ValidationError
		require.ErrorAs(t, err, &vErr, body)
		assert.Equal(t, field, vErr.Field, body)
	}

	order, err := ParseOrder([]byte(" {\"id\": 7} "))
	require.NoError(t, err)
	assert.Equal(t, int64(7), order.ID)
}

func TestBuildEnvelope(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 6000000, time.UTC)
	order := model.SyncOrder{OrderID: 1, OrderName: "#1"}

	env := BuildEnvelope(orderEvent(model.TopicOrdersUpdated, ""), order, now)
	assert.False(t, env.DryRun)
	assert.Equal(t, 1, env.Limit)
	assert.False(t, env.SkipExisting)
	assert.True(t, env.UpdateExisting)
	assert.Equal(t, []model.SyncOrder{order}, env.Orders)
	assert.Equal(t, env.Orders, env.Data)
	assert.Equal(t, env.Orders, env.OrderData)
	assert.Equal(t, "2024-01-02T03:04:05.006Z", env.Timestamp)
	assert.Equal(t, "shopify-webhook", env.Source)
	assert.Equal(t, "demo.myshopify.com", env.ShopDomain)
	assert.Equal(t, "webhook-update", env.SyncType)
	assert.Equal(t, 1, env.OrderCount)
	assert.Equal(t, "wh-1", env.WebhookID)
	assert.Equal(t, model.TopicOrdersUpdated, env.Topic)

	env = BuildEnvelope(orderEvent(model.TopicOrdersCreate, ""), order, now)
	assert.Equal(t, "webhook", env.SyncType)
}

func TestRelay_OnOrderEvent(t *testing.T) {
	t.Run("delivers once", func(t *testing.T) {
		sink := new(MockSink)
		sink.On("Deliver", mock.Anything, mock.MatchedBy(func(e *model.OutboundOrderEnvelope) bool {
			return e.OrderCount == 1 && e.Orders[0].OrderName == "#1001" && e.Topic == model.TopicOrdersCreate
		})).Return(nil).Once()
		rec := &stateRecorder{}

		r := NewRelay(sink, NewRedeliveryDetector(100, 0.01), rec)
		state := r.OnOrderEvent(context.Background(), orderEvent(model.TopicOrdersCreate, fullOrder))

		assert.Equal(t, StateDelivered, state)
		assert.Equal(t, []string{"delivered"}, rec.states)
		sink.AssertExpectations(t)
	})

	t.Run("customer null still delivers", func(t *testing.T) {
		sink := new(MockSink)
		sink.On("Deliver", mock.Anything, mock.MatchedBy(func(e *model.OutboundOrderEnvelope) bool {
			return e.Orders[0].Customer == nil
		})).Return(nil).Once()

		r := NewRelay(sink, nil, nil)
		state := r.OnOrderEvent(context.Background(), orderEvent(model.TopicOrdersCreate, `{"id":5,"name":"#5","customer":null,"line_items":[]}`))

		assert.Equal(t, StateDelivered, state)
		sink.AssertExpectations(t)
	})

	t.Run("delivery failure is isolated", func(t *testing.T) {
		sink := new(MockSink)
		sink.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("external ORDER_SYNC returned 500: boom")).Once()

		r := NewRelay(sink, nil, nil)
		var state DeliveryState
		assert.NotPanics(t, func() {
			state = r.OnOrderEvent(context.Background(), orderEvent(model.TopicOrdersCreate, fullOrder))
		})
		assert.Equal(t, StateDeliveryFailed, state)
		sink.AssertNumberOfCalls(t, "Deliver", 1)
	})

	t.Run("parse failure skips delivery", func(t *testing.T) {
		sink := new(MockSink)
		r := NewRelay(sink, nil, nil)

		state := r.OnOrderEvent(context.Background(), orderEvent(model.TopicOrdersCreate, `{not json`))
		assert.Equal(t, StateParseFailed, state)
		sink.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
	})

	t.Run("body without order shape skips delivery", func(t *testing.T) {
		for _, body := range []string{`null`, `{}`, `{"foo":1}`, `[]`, `{"id":0}`, ``} {
			sink := new(MockSink)
			rec := &stateRecorder{}
			r := NewRelay(sink, nil, rec)

			state := r.OnOrderEvent(context.Background(), orderEvent(model.TopicOrdersCreate, body))
			assert.Equal(t, StateParseFailed, state, body)
			assert.Equal(t, []string{"parse_failed"}, rec.states, body)
			sink.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
		}
	})

	t.Run("unsupported topic ignored", func(t *testing.T) {
		sink := new(MockSink)
		r := NewRelay(sink, nil, nil)

		state := r.OnOrderEvent(context.Background(), orderEvent(model.TopicAppUninstalled, fullOrder))
		assert.Equal(t, StateIgnored, state)
		sink.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
	})

	t.Run("redelivery is flagged but still delivered", func(t *testing.T) {
		sink := new(MockSink)
		sink.On("Deliver", mock.Anything, mock.Anything).Return(nil).Twice()
		rec := &stateRecorder{}

		r := NewRelay(sink, NewRedeliveryDetector(100, 0.01), rec)
		r.OnOrderEvent(context.Background(), orderEvent(model.TopicOrdersUpdated, fullOrder))
		r.OnOrderEvent(context.Background(), orderEvent(model.TopicOrdersUpdated, fullOrder))

		assert.Equal(t, 1, rec.redeliveries)
		sink.AssertNumberOfCalls(t, "Deliver", 2)
	})
}

func TestRedeliveryDetector(t *testing.T) {
	d := NewRedeliveryDetector(0, 0)
	assert.False(t, d.Seen("a"))
	assert.True(t, d.Seen("a"))
	assert.False(t, d.Seen(""))
	assert.False(t, d.Seen(""))

	var nilDetector *RedeliveryDetector
	assert.False(t, nilDetector.Seen("a"))
}
