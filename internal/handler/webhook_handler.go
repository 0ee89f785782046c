package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"shopsync/internal/middleware"
	"shopsync/internal/model"
	"shopsync/internal/shopify"
	"shopsync/pkg/log"
	"shopsync/pkg/utils"
)

// Webhook intake results
const (
	WebhookQueued  = "queued"
	WebhookDropped = "dropped"
	WebhookPrivacy = "privacy"
	WebhookIgnored = "ignored"
)

// EventDispatcher hands order webhooks to the relay workers
type EventDispatcher interface {
	Dispatch(ctx context.Context, event model.OrderWebhookEvent) error
}

// WebhookRegistrar subscribes the app to order webhooks
type WebhookRegistrar interface {
	RegisterOrderWebhooks(ctx context.Context, callbackURL string) ([]shopify.WebhookSubscription, error)
}

// WebhookRecorder records webhook intake
type WebhookRecorder interface {
	RecordWebhook(topic, result string)
}

// WebhookHandler webhook handler
type WebhookHandler struct {
	dispatcher  EventDispatcher
	registrar   WebhookRegistrar
	callbackURL string
	recorder    WebhookRecorder
	now         func() time.Time
}

// NewWebhookHandler creates a webhook handler. recorder may be nil.
func NewWebhookHandler(dispatcher EventDispatcher, registrar WebhookRegistrar, callbackURL string, recorder WebhookRecorder) *WebhookHandler {
	return &WebhookHandler{
		dispatcher:  dispatcher,
		registrar:   registrar,
		callbackURL: callbackURL,
		recorder:    recorder,
		now:         time.Now,
	}
}

// Receive acknowledges a verified webhook and dispatches order topics
// without waiting for delivery.
func (h *WebhookHandler) Receive(c *gin.Context) {
	topic := model.ParseWebhookTopic(c.GetHeader(middleware.HeaderShopifyTopic))
	shop := c.GetHeader(middleware.HeaderShopifyShopDomain)
	webhookID := c.GetHeader(middleware.HeaderShopifyWebhookID)
	if webhookID == "" {
		webhookID = c.GetHeader(middleware.HeaderShopifyEventID)
	}
	body, _ := c.Get(middleware.RawBodyKey)
	raw, _ := body.([]byte)

	logger := log.WithFields(log.Fields{
		"topic":      topic,
		"shop":       shop,
		"webhook_id": webhookID,
	})

	result := WebhookIgnored
	switch {
	case topic.IsOrderTopic():
		event := model.OrderWebhookEvent{
			Topic:      topic,
			ShopDomain: shop,
			WebhookID:  webhookID,
			RawOrder:   raw,
			ReceivedAt: h.now().UTC(),
		}
		// Detached from the request so the ack is never held up.
		if err := h.dispatcher.Dispatch(context.WithoutCancel(c.Request.Context()), event); err != nil {
			logger.WithError(err).Error("Failed to dispatch order webhook")
			result = WebhookDropped
		} else {
			result = WebhookQueued
		}
	case topic.IsPrivacyTopic():
		logger.WithField("body_length", len(raw)).Info("Privacy webhook received")
		result = WebhookPrivacy
	default:
		logger.Info("Unhandled webhook topic")
	}

	if h.recorder != nil {
		h.recorder.RecordWebhook(string(topic), result)
	}
	c.Status(http.StatusOK)
}

// Register subscribes the app to orders/create and orders/updated.
func (h *WebhookHandler) Register(c *gin.Context) {
	shop := c.GetString(middleware.ShopDomainKey)
	log.WithFields(log.Fields{"shop": shop, "callback": h.callbackURL}).Info("Registering order webhooks")

	result, err := h.registrar.RegisterOrderWebhooks(c.Request.Context(), h.callbackURL)
	if err != nil {
		log.WithFields(log.Fields{"shop": shop, "error": err.Error()}).Error("Failed to register webhooks")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to register webhooks", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Webhooks registered successfully",
		"result":  result,
	})
}

// Test reports that the webhook route is reachable.
func (h *WebhookHandler) Test(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "Webhook endpoint is working!",
		"timestamp": h.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		"url":       c.Request.URL.RequestURI(),
	})
}
