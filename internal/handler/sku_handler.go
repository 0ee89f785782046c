package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shopsync/internal/middleware"
	"shopsync/internal/service/inventory"
	"shopsync/pkg/log"
	"shopsync/pkg/utils"
)

// SKUHandler sku quantity handler
type SKUHandler struct {
	syncService inventory.SyncService
}

// NewSKUHandler creates a sku handler
func NewSKUHandler(syncService inventory.SyncService) *SKUHandler {
	return &SKUHandler{
		syncService: syncService,
	}
}

// GetQuantities fetches the warehouse snapshot and reconciles it into Shopify.
// Per-SKU failures are reported in the body; only a snapshot failure is a 500.
func (h *SKUHandler) GetQuantities(c *gin.Context) {
	snapshot, report, err := h.syncService.SyncFromSource(c.Request.Context())
	if err != nil {
		log.WithFields(log.Fields{
			"shop":  c.GetString(middleware.ShopDomainKey),
			"error": err.Error(),
		}).Error("Failed to fetch SKU quantities")
		utils.ErrorResponse(c, http.StatusInternalServerError, "External API is unavailable", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    snapshot.Data,
		"report":  report,
	})
}
