package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"shopsync/internal/service/access"
	"shopsync/pkg/utils"
)

// ValidateTokenRequest validate token request
type ValidateTokenRequest struct {
	Token      string `json:"token" binding:"notblank"`
	ShopDomain string `json:"shopDomain" binding:"notblank"`
}

type accessGrant struct {
	ShopDomain  string     `json:"shopDomain"`
	ValidatedAt *time.Time `json:"validatedAt"`
}

// AccessHandler shop access handler
type AccessHandler struct {
	accessService access.Service
}

// NewAccessHandler creates an access handler
func NewAccessHandler(accessService access.Service) *AccessHandler {
	return &AccessHandler{
		accessService: accessService,
	}
}

// ValidateToken redeems an access token for a shop
func (h *AccessHandler) ValidateToken(c *gin.Context) {
	var req ValidateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, access.MsgFieldsRequired, nil)
		return
	}

	grant, err := h.accessService.ValidateToken(c.Request.Context(), req.Token, req.ShopDomain)
	if err != nil {
		utils.AbortWithError(c, err)
		return
	}

	utils.MessageResponse(c, "Token validated successfully. You now have access to the app!", accessGrant{
		ShopDomain:  grant.ShopDomain,
		ValidatedAt: grant.ValidatedAt,
	})
}

// CheckAccess reports whether a shop has redeemed a token
func (h *AccessHandler) CheckAccess(c *gin.Context) {
	grant, ok, err := h.accessService.CheckAccess(c.Request.Context(), c.Query("shopDomain"))
	if err != nil {
		utils.AbortWithError(c, err)
		return
	}

	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"hasAccess": false,
			"message":   "Token validation required",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"hasAccess": true,
		"data": accessGrant{
			ShopDomain:  grant.ShopDomain,
			ValidatedAt: grant.ValidatedAt,
		},
	})
}
