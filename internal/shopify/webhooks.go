package shopify

import (
	"context"
	"fmt"
	"strings"

	"shopsync/internal/model"
)

const webhookSubscriptionCreateMutation = `
mutation WebhookSubscriptionCreate($topic: WebhookSubscriptionTopic!, $webhookSubscription: WebhookSubscriptionInput!) {
  webhookSubscriptionCreate(topic: $topic, webhookSubscription: $webhookSubscription) {
    webhookSubscription {
      id
      topic
    }
    userErrors {
      field
      message
    }
  }
}`

// WebhookSubscription is a registered webhook.
type WebhookSubscription struct {
	ID    string             `json:"id"`
	Topic model.WebhookTopic `json:"topic"`
}

// OrderWebhookTopics are the topics the relay subscribes to.
var OrderWebhookTopics = []model.WebhookTopic{model.TopicOrdersCreate, model.TopicOrdersUpdated}

// RegisterOrderWebhooks subscribes callbackURL to the order topics. It stops
// at the first topic that fails.
func (c *Client) RegisterOrderWebhooks(ctx context.Context, callbackURL string) ([]WebhookSubscription, error) {
	callbackURL = strings.TrimSpace(callbackURL)
	if callbackURL == "" {
		return nil, fmt.Errorf("register webhooks: empty callback url")
	}

	subs := make([]WebhookSubscription, 0, len(OrderWebhookTopics))
	for _, topic := range OrderWebhookTopics {
		vars := map[string]any{
			"topic": string(topic),
			"webhookSubscription": map[string]any{
				"callbackUrl": callbackURL,
				"format":      "JSON",
			},
		}
		var data webhookSubscriptionCreateData
		if err := c.graphqlRequest(ctx, "webhook_subscription_create", webhookSubscriptionCreateMutation, vars, &data); err != nil {
			return subs, fmt.Errorf("register %s webhook: %w", topic, err)
		}
		payload := data.WebhookSubscriptionCreate
		if err := userErrorsToError("webhookSubscriptionCreate", payload.UserErrors); err != nil {
			return subs, fmt.Errorf("register %s webhook: %w", topic, err)
		}
		sub := WebhookSubscription{Topic: topic}
		if payload.WebhookSubscription != nil {
			sub.ID = payload.WebhookSubscription.ID
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
