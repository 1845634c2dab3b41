// internal/models/delivery.go
package models

import "time"

// Delivery attempt statuses. Transitions are pending -> sent|failed, never
// backwards.
const (
	AttemptStatusPending = "pending"
	AttemptStatusSent    = "sent"
	AttemptStatusFailed  = "failed"
)

// DeliveryAttempt records the outcome of one deduplicated target within one
// job execution.
type DeliveryAttempt struct {
	ID                string    `json:"id"`
	JobID             string    `json:"jobId"`
	TenantID          string    `json:"tenantId"`
	PlatformID        string    `json:"platformId"`
	PlatformType      string    `json:"platformType"`
	AddresseeType     string    `json:"addresseeType"`
	AddresseeID       string    `json:"addresseeId"`
	Status            string    `json:"status"`
	ProviderMessageID string    `json:"providerMessageId,omitempty"`
	ErrorMessage      string    `json:"errorMessage,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}
