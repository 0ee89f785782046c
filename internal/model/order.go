package model

import (
	"encoding/json"
	"strings"
	"time"
)

// WebhookTopic is a Shopify webhook topic in GraphQL enum form.
type WebhookTopic string

const (
	TopicOrdersCreate         WebhookTopic = "ORDERS_CREATE"
	TopicOrdersUpdated        WebhookTopic = "ORDERS_UPDATED"
	TopicCustomersDataRequest WebhookTopic = "CUSTOMERS_DATA_REQUEST"
	TopicCustomersRedact      WebhookTopic = "CUSTOMERS_REDACT"
	TopicShopRedact           WebhookTopic = "SHOP_REDACT"
	TopicAppUninstalled       WebhookTopic = "APP_UNINSTALLED"
)

// ParseWebhookTopic converts the X-Shopify-Topic header form ("orders/create")
// to the enum form.
func ParseWebhookTopic(header string) WebhookTopic {
	t := strings.ToUpper(strings.TrimSpace(header))
	return WebhookTopic(strings.ReplaceAll(t, "/", "_"))
}

// Header returns the X-Shopify-Topic form of the topic.
func (t WebhookTopic) Header() string {
	return strings.ReplaceAll(strings.ToLower(string(t)), "_", "/")
}

// IsOrderTopic reports whether the relay handles the topic.
func (t WebhookTopic) IsOrderTopic() bool {
	return t == TopicOrdersCreate || t == TopicOrdersUpdated
}

// IsPrivacyTopic reports whether t is one of the mandatory compliance topics.
func (t WebhookTopic) IsPrivacyTopic() bool {
	switch t {
	case TopicCustomersDataRequest, TopicCustomersRedact, TopicShopRedact:
		return true
	}
	return false
}

// SyncType is the value the order receiver uses to tell creates from updates.
func (t WebhookTopic) SyncType() string {
	if t == TopicOrdersUpdated {
		return "webhook-update"
	}
	return "webhook"
}

// OrderWebhookEvent is one verified webhook delivery.
type OrderWebhookEvent struct {
	Topic      WebhookTopic `json:"topic"`
	ShopDomain string       `json:"shop_domain"`
	WebhookID  string       `json:"webhook_id"`
	RawOrder   []byte       `json:"raw_order"`
	ReceivedAt time.Time    `json:"received_at"`
}

// ShopifyMoney is the shop_money half of a Shopify price set.
type ShopifyMoney struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

// ShopifyPriceSet mirrors the REST webhook price-set object.
type ShopifyPriceSet struct {
	ShopMoney *ShopifyMoney `json:"shop_money"`
}

// ShopifyCustomer is the subset of the webhook customer object that is relayed.
type ShopifyCustomer struct {
	ID        int64   `json:"id"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
}

// ShopifyLineItem is the subset of a webhook line item that is relayed.
type ShopifyLineItem struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Quantity     int     `json:"quantity"`
	VariantID    *int64  `json:"variant_id"`
	VariantTitle *string `json:"variant_title"`
	SKU          *string `json:"sku"`
	Price        string  `json:"price"`
	ProductID    *int64  `json:"product_id"`
	ProductTitle *string `json:"product_title"`
	ProductType  *string `json:"product_type"`
	Vendor       *string `json:"vendor"`
}

// ShopifyOrder is the REST order payload carried by orders/* webhooks.
type ShopifyOrder struct {
	ID                    int64             `json:"id"`
	Name                  string            `json:"name"`
	Email                 *string           `json:"email"`
	TotalPrice            *string           `json:"total_price"`
	SubtotalPrice         *string           `json:"subtotal_price"`
	TotalTax              *string           `json:"total_tax"`
	TotalShippingPriceSet *ShopifyPriceSet  `json:"total_shipping_price_set"`
	Currency              *string           `json:"currency"`
	FulfillmentStatus     *string           `json:"fulfillment_status"`
	FinancialStatus       *string           `json:"financial_status"`
	ProcessedAt           *string           `json:"processed_at"`
	CreatedAt             *string           `json:"created_at"`
	UpdatedAt             *string           `json:"updated_at"`
	Customer              *ShopifyCustomer  `json:"customer"`
	ShippingAddress       json.RawMessage   `json:"shipping_address"`
	BillingAddress        json.RawMessage   `json:"billing_address"`
	LineItems             []ShopifyLineItem `json:"line_items"`
}

// SyncCustomer is the relayed customer projection.
type SyncCustomer struct {
	ID        int64   `json:"id"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
}

// SyncVariant is the relayed variant projection.
type SyncVariant struct {
	ID    string  `json:"id"`
	Title *string `json:"title"`
	SKU   *string `json:"sku"`
	Price string  `json:"price"`
}

// SyncProduct is the relayed product projection.
type SyncProduct struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	ProductType *string `json:"productType"`
	Vendor      *string `json:"vendor"`
}

// SyncLineItem is the relayed line item projection.
type SyncLineItem struct {
	ID       int64        `json:"id"`
	Title    string       `json:"title"`
	Quantity int          `json:"quantity"`
	Variant  *SyncVariant `json:"variant"`
	Product  *SyncProduct `json:"product"`
}

// SyncOrder is the normalized order sent to the warehouse.
type SyncOrder struct {
	OrderID           int64           `json:"orderId"`
	OrderName         string          `json:"orderName"`
	Email             *string         `json:"email"`
	TotalPrice        *string         `json:"totalPrice"`
	SubtotalPrice     *string         `json:"subtotalPrice"`
	TotalTax          *string         `json:"totalTax"`
	TotalShipping     string          `json:"totalShipping"`
	CurrencyCode      *string         `json:"currencyCode"`
	FulfillmentStatus *string         `json:"fulfillmentStatus"`
	FinancialStatus   *string         `json:"financialStatus"`
	ProcessedAt       *string         `json:"processedAt"`
	CreatedAt         *string         `json:"createdAt"`
	UpdatedAt         *string         `json:"updatedAt"`
	Customer          *SyncCustomer   `json:"customer"`
	ShippingAddress   json.RawMessage `json:"shippingAddress"`
	BillingAddress    json.RawMessage `json:"billingAddress"`
	LineItems         []SyncLineItem  `json:"lineItems"`
}

// OutboundOrderEnvelope is the body POSTed to the order sync endpoint. The
// dryRun/limit/skip/update flags and the three order arrays are what the
// receiver's bulk import route expects.
type OutboundOrderEnvelope struct {
	DryRun         bool         `json:"dryRun"`
	Limit          int          `json:"limit"`
	SkipExisting   bool         `json:"skipExisting"`
	UpdateExisting bool         `json:"updateExisting"`
	Orders         []SyncOrder  `json:"orders"`
	Data           []SyncOrder  `json:"data"`
	OrderData      []SyncOrder  `json:"orderData"`
	Timestamp      string       `json:"timestamp"`
	Source         string       `json:"source"`
	ShopDomain     string       `json:"shopDomain"`
	SyncType       string       `json:"syncType"`
	OrderCount     int          `json:"orderCount"`
	WebhookID      string       `json:"webhookId"`
	Topic          WebhookTopic `json:"topic"`
}

// EnvelopeSource tags envelopes produced from webhooks.
const EnvelopeSource = "shopify-webhook"
