package model

import (
	"fmt"
	"strings"
)

// SKUQuantity is one warehouse line: a SKU and its authoritative on-hand count.
type SKUQuantity struct {
	SKU            string `json:"sku"`
	QuantityOnHand int    `json:"quantity_on_hand"`
}

// InventoryRecord is the warehouse snapshot for one company.
type InventoryRecord struct {
	CompanyName    string        `json:"company_name"`
	CompanyWebsite string        `json:"company_website,omitempty"`
	SKUs           []SKUQuantity `json:"skus"`
	TotalSKUs      int           `json:"total_skus"`
	TotalQuantity  int           `json:"total_quantity"`
}

// SKUQuantitiesResponse is the body returned by the warehouse SKU endpoint.
type SKUQuantitiesResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Data    []InventoryRecord `json:"data"`
}

// ValidationError reports a malformed payload at a system boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks the envelope; per-SKU problems are left to the
// reconciler so one bad line does not reject the whole batch.
func (r *SKUQuantitiesResponse) Validate() error {
	if !r.Success {
		msg := strings.TrimSpace(r.Message)
		if msg == "" {
			msg = "source reported success=false"
		}
		return &ValidationError{Field: "success", Reason: msg}
	}
	if r.Data == nil {
		return &ValidationError{Field: "data", Reason: "missing"}
	}
	for i, rec := range r.Data {
		if rec.SKUs == nil {
			return &ValidationError{Field: fmt.Sprintf("data[%d].skus", i), Reason: "missing"}
		}
	}
	return nil
}

// LocationStock is the stock of one inventory item at one location.
type LocationStock struct {
	LocationID int64 `json:"location_id"`
	Available  int   `json:"available"`
	Committed  int   `json:"committed"`
}

// VariantStock is a Shopify variant and its per-location stock, read fresh
// for every reconciliation.
type VariantStock struct {
	VariantID         string          `json:"variant_id"`
	SKU               string          `json:"sku"`
	AvailableQuantity int             `json:"available_quantity"`
	InventoryItemID   string          `json:"inventory_item_id"`
	Locations         []LocationStock `json:"locations"`
}

// PrimaryLocation returns the first location row, the one adjustments target.
func (v VariantStock) PrimaryLocation() (LocationStock, bool) {
	if len(v.Locations) == 0 {
		return LocationStock{}, false
	}
	return v.Locations[0], true
}

// AdjustmentIntent is a non-zero delta to apply at one location.
type AdjustmentIntent struct {
	SKU             string
	LocationID      int64
	InventoryItemID string
	Delta           int
}

// AdjustmentChange is one row of an applied adjustment group.
type AdjustmentChange struct {
	Name                string `json:"name"`
	Delta               int    `json:"delta"`
	QuantityAfterChange *int   `json:"quantityAfterChange"`
	LocationName        string `json:"locationName"`
}

// AdjustmentResult is Shopify's confirmation of an applied adjustment.
type AdjustmentResult struct {
	GroupID      string             `json:"groupId"`
	Reason       string             `json:"reason"`
	ReferenceURI string             `json:"referenceDocumentUri"`
	Changes      []AdjustmentChange `json:"changes"`
}
