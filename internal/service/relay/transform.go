package relay

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"shopsync/internal/model"
)

// ParseOrder decodes a webhook order body. The body must be a JSON object
// carrying a non-zero order id; anything else is a *model.ValidationError.
func ParseOrder(raw []byte) (*model.ShopifyOrder, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &model.ValidationError{Field: "order", Reason: "body is not a JSON object"}
	}
	var order model.ShopifyOrder
	if err := json.Unmarshal(trimmed, &order); err != nil {
		return nil, &model.ValidationError{Field: "order", Reason: err.Error()}
	}
	if order.ID <= 0 {
		return nil, &model.ValidationError{Field: "id", Reason: "missing or not positive"}
	}
	return &order, nil
}

// TransformOrder projects a webhook order onto the warehouse order shape.
func TransformOrder(o *model.ShopifyOrder) model.SyncOrder {
	out := model.SyncOrder{
		OrderID:           o.ID,
		OrderName:         o.Name,
		Email:             o.Email,
		TotalPrice:        o.TotalPrice,
		SubtotalPrice:     o.SubtotalPrice,
		TotalTax:          o.TotalTax,
		TotalShipping:     shippingAmount(o.TotalShippingPriceSet),
		CurrencyCode:      o.Currency,
		FulfillmentStatus: o.FulfillmentStatus,
		FinancialStatus:   o.FinancialStatus,
		ProcessedAt:       o.ProcessedAt,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
		ShippingAddress:   rawOrNull(o.ShippingAddress),
		BillingAddress:    rawOrNull(o.BillingAddress),
		LineItems:         make([]model.SyncLineItem, 0, len(o.LineItems)),
	}

	if c := o.Customer; c != nil {
		out.Customer = &model.SyncCustomer{
			ID:        c.ID,
			FirstName: c.FirstName,
			LastName:  c.LastName,
			Email:     c.Email,
			Phone:     c.Phone,
		}
	}

	for _, li := range o.LineItems {
		item := model.SyncLineItem{
			ID:       li.ID,
			Title:    li.Title,
			Quantity: li.Quantity,
		}
		if li.VariantID != nil && *li.VariantID != 0 {
			item.Variant = &model.SyncVariant{
				ID:    "gid://shopify/ProductVariant/" + strconv.FormatInt(*li.VariantID, 10),
				Title: li.VariantTitle,
				SKU:   li.SKU,
				Price: li.Price,
			}
		}
		if li.ProductID != nil && *li.ProductID != 0 {
			title := li.Title
			if li.ProductTitle != nil && *li.ProductTitle != "" {
				title = *li.ProductTitle
			}
			item.Product = &model.SyncProduct{
				ID:          "gid://shopify/Product/" + strconv.FormatInt(*li.ProductID, 10),
				Title:       title,
				ProductType: li.ProductType,
				Vendor:      li.Vendor,
			}
		}
		out.LineItems = append(out.LineItems, item)
	}
	return out
}

// BuildEnvelope wraps one transformed order in the bulk-import envelope the
// order receiver expects.
func BuildEnvelope(event model.OrderWebhookEvent, order model.SyncOrder, now time.Time) *model.OutboundOrderEnvelope {
	orders := []model.SyncOrder{order}
	return &model.OutboundOrderEnvelope{
		DryRun:         false,
		Limit:          1,
		SkipExisting:   false,
		UpdateExisting: true,
		Orders:         orders,
		Data:           orders,
		OrderData:      orders,
		Timestamp:      now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Source:         model.EnvelopeSource,
		ShopDomain:     event.ShopDomain,
		SyncType:       event.Topic.SyncType(),
		OrderCount:     1,
		WebhookID:      event.WebhookID,
		Topic:          event.Topic,
	}
}

func shippingAmount(ps *model.ShopifyPriceSet) string {
	if ps == nil || ps.ShopMoney == nil || ps.ShopMoney.Amount == "" {
		return "0"
	}
	return ps.ShopMoney.Amount
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
