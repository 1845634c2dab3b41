// internal/models/webhook.go
package models

import "time"

// Event types pushed to webhook subscribers.
const (
	EventMessageReceived = "message.received"
	EventMessageSent     = "message.sent"
	EventMessageFailed   = "message.failed"
	EventButtonClicked   = "button.clicked"
	EventReactionAdded   = "reaction.added"
	EventReactionRemoved = "reaction.removed"
)

// Webhook delivery statuses. Transitions are pending -> success|failed.
const (
	DeliveryStatusPending = "pending"
	DeliveryStatusSuccess = "success"
	DeliveryStatusFailed  = "failed"
)

// Webhook is a tenant-scoped HTTP callback subscription.
type Webhook struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Events    []string  `json:"events"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WebhookDelivery records one (possibly retried) notification to one webhook
// for one event occurrence.
type WebhookDelivery struct {
	ID           string    `json:"id"`
	WebhookID    string    `json:"webhookId"`
	Event        string    `json:"event"`
	Payload      string    `json:"payload"` // JSON snapshot as sent
	Status       string    `json:"status"`
	Attempts     int       `json:"attempts"`
	ResponseBody string    `json:"responseBody,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// WebhookStats aggregates delivery outcomes for one webhook.
type WebhookStats struct {
	Total       int64   `json:"total"`
	Successful  int64   `json:"successful"`
	Failed      int64   `json:"failed"`
	Pending     int64   `json:"pending"`
	SuccessRate float64 `json:"successRate"`
}
