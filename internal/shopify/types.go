package shopify

type graphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type graphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path"`
	Extensions map[string]any `json:"extensions"`
}

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

type variantNode struct {
	ID                string `json:"id"`
	SKU               string `json:"sku"`
	InventoryQuantity *int   `json:"inventoryQuantity"`
	InventoryItem     *struct {
		ID string `json:"id"`
	} `json:"inventoryItem"`
}

type variantBySKUData struct {
	ProductVariants struct {
		Nodes []variantNode `json:"nodes"`
	} `json:"productVariants"`
}

type inventoryLevelsResponse struct {
	InventoryLevels []struct {
		InventoryItemID int64 `json:"inventory_item_id"`
		LocationID      int64 `json:"location_id"`
		Available       *int  `json:"available"`
		Committed       *int  `json:"committed"`
	} `json:"inventory_levels"`
}

type inventoryAdjustData struct {
	InventoryAdjustQuantities struct {
		InventoryAdjustmentGroup *struct {
			ID                   string `json:"id"`
			Reason               string `json:"reason"`
			ReferenceDocumentURI string `json:"referenceDocumentUri"`
			Changes              []struct {
				Name                string `json:"name"`
				Delta               int    `json:"delta"`
				QuantityAfterChange *int   `json:"quantityAfterChange"`
				Location            *struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"location"`
			} `json:"changes"`
		} `json:"inventoryAdjustmentGroup"`
		UserErrors []userError `json:"userErrors"`
	} `json:"inventoryAdjustQuantities"`
}

type webhookSubscriptionCreateData struct {
	WebhookSubscriptionCreate struct {
		WebhookSubscription *struct {
			ID    string `json:"id"`
			Topic string `json:"topic"`
		} `json:"webhookSubscription"`
		UserErrors []userError `json:"userErrors"`
	} `json:"webhookSubscriptionCreate"`
}
