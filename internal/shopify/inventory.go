package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"shopsync/internal/model"
)

// AdjustReasonCorrection is the Shopify reason code used for reconciliation writes.
const AdjustReasonCorrection = "correction"

// skuSearchPage bounds how many search hits are scanned for an exact SKU.
const skuSearchPage = 10

const variantBySKUQuery = `
query VariantBySKU($query: String!, $first: Int!) {
  productVariants(first: $first, query: $query) {
    nodes {
      id
      sku
      inventoryQuantity
      inventoryItem {
        id
      }
    }
  }
}`

const inventoryAdjustMutation = `
mutation InventoryAdjust($input: InventoryAdjustQuantitiesInput!) {
  inventoryAdjustQuantities(input: $input) {
    inventoryAdjustmentGroup {
      id
      reason
      referenceDocumentUri
      changes {
        name
        delta
        quantityAfterChange
        location {
          id
          name
        }
      }
    }
    userErrors {
      field
      message
    }
  }
}`

// FindVariantBySKU looks up the variant whose SKU equals sku and reads its
// per-location stock. A missing variant, or a search hit whose SKU differs,
// is reported as found=false with a nil error.
func (c *Client) FindVariantBySKU(ctx context.Context, sku string) (model.VariantStock, bool, error) {
	var data variantBySKUData
	vars := map[string]any{"query": buildSearchQuery("sku", sku), "first": skuSearchPage}
	if err := c.graphqlRequest(ctx, "find_variant", variantBySKUQuery, vars, &data); err != nil {
		return model.VariantStock{}, false, fmt.Errorf("find variant %q: %w", sku, err)
	}

	node, ok := exactSKUMatch(data.ProductVariants.Nodes, sku)
	if !ok {
		return model.VariantStock{}, false, nil
	}
	if node.InventoryItem == nil || node.InventoryItem.ID == "" {
		return model.VariantStock{}, false, fmt.Errorf("variant %s has no inventory item", node.ID)
	}

	stock := model.VariantStock{
		VariantID:       node.ID,
		SKU:             node.SKU,
		InventoryItemID: node.InventoryItem.ID,
		Locations:       []model.LocationStock{},
	}
	if node.InventoryQuantity != nil {
		stock.AvailableQuantity = *node.InventoryQuantity
	}

	levels, err := c.inventoryLevels(ctx, node.InventoryItem.ID)
	if err != nil {
		return model.VariantStock{}, false, fmt.Errorf("inventory levels for %q: %w", sku, err)
	}
	stock.Locations = levels
	return stock, true, nil
}

// exactSKUMatch returns the first search hit whose SKU equals sku after
// trimming, NFC normalization and case folding. Search also returns
// prefix and token matches, so every hit is checked.
func exactSKUMatch(nodes []variantNode, sku string) (variantNode, bool) {
	want := norm.NFC.String(strings.TrimSpace(sku))
	for _, n := range nodes {
		if strings.EqualFold(norm.NFC.String(strings.TrimSpace(n.SKU)), want) {
			return n, true
		}
	}
	return variantNode{}, false
}

func (c *Client) inventoryLevels(ctx context.Context, inventoryItemGID string) ([]model.LocationStock, error) {
	itemID, err := NumericID(inventoryItemGID)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("inventory_item_ids", strconv.FormatInt(itemID, 10))
	endpoint := c.adminURL("/inventory_levels.json") + "?" + q.Encode()

	raw, err := c.shopifyAPIRequest(ctx, "inventory_levels", http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var resp inventoryLevelsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode inventory levels: %w", err)
	}

	levels := make([]model.LocationStock, 0, len(resp.InventoryLevels))
	for _, lvl := range resp.InventoryLevels {
		ls := model.LocationStock{LocationID: lvl.LocationID}
		if lvl.Available != nil {
			ls.Available = *lvl.Available
		}
		if lvl.Committed != nil {
			ls.Committed = *lvl.Committed
		}
		levels = append(levels, ls)
	}
	return levels, nil
}

// AdjustAvailable applies intent.Delta to the "available" quantity at one
// location. It is never retried.
func (c *Client) AdjustAvailable(ctx context.Context, intent model.AdjustmentIntent, reason string) (model.AdjustmentResult, error) {
	if intent.Delta == 0 {
		return model.AdjustmentResult{}, errors.New("adjust available: zero delta")
	}
	if reason == "" {
		reason = AdjustReasonCorrection
	}
	refURI := fmt.Sprintf("app://%s/%s-%d", c.appHandle, url.PathEscape(intent.SKU), c.now().UnixMilli())

	vars := map[string]any{
		"input": map[string]any{
			"name":                 "available",
			"reason":               reason,
			"referenceDocumentUri": refURI,
			"changes": []map[string]any{{
				"delta":           intent.Delta,
				"inventoryItemId": intent.InventoryItemID,
				"locationId":      LocationGID(intent.LocationID),
			}},
		},
	}

	var data inventoryAdjustData
	if err := c.graphqlRequest(ctx, "adjust_available", inventoryAdjustMutation, vars, &data); err != nil {
		return model.AdjustmentResult{}, fmt.Errorf("adjust %q: %w", intent.SKU, err)
	}
	payload := data.InventoryAdjustQuantities
	if err := userErrorsToError("inventoryAdjustQuantities", payload.UserErrors); err != nil {
		return model.AdjustmentResult{}, err
	}

	result := model.AdjustmentResult{ReferenceURI: refURI, Changes: []model.AdjustmentChange{}}
	if g := payload.InventoryAdjustmentGroup; g != nil {
		result.GroupID = g.ID
		result.Reason = g.Reason
		if g.ReferenceDocumentURI != "" {
			result.ReferenceURI = g.ReferenceDocumentURI
		}
		for _, ch := range g.Changes {
			change := model.AdjustmentChange{
				Name:                ch.Name,
				Delta:               ch.Delta,
				QuantityAfterChange: ch.QuantityAfterChange,
			}
			if ch.Location != nil {
				change.LocationName = ch.Location.Name
			}
			result.Changes = append(result.Changes, change)
		}
	}
	return result, nil
}
