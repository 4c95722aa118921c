// Package models - webhook.go defines outbound event subscriptions.
package models

import "time"

// Webhook event names a subscription may select
const (
	WebhookEventMessageReceived = "message.received"
	WebhookEventMessageSent     = "message.sent"
	WebhookEventMessageFailed   = "message.failed"
	WebhookEventReactionAdded   = "reaction.added"
	WebhookEventReactionRemoved = "reaction.removed"
	WebhookEventButtonClicked   = "button.clicked"
)

// Webhook is a project's subscription to gateway events
type Webhook struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Secret    string    `json:"-"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
