// internal/models/message.go
package models

import "time"

// Target identifies one recipient of a SendJob: a platform instance plus
// the addressee on that platform.
type Target struct {
	PlatformID    string `json:"platformId"`
	AddresseeType string `json:"addresseeType"` // "user", "channel", "group"
	AddresseeID   string `json:"addresseeId"`
}

// SendJob is the unit of work enqueued by the caller-facing API. Immutable
// once submitted.
type SendJob struct {
	ID       string                 `json:"id"`
	TenantID string                 `json:"tenantId"`
	Targets  []Target               `json:"targets"`
	Content  MessageContent         `json:"content"`
	Options  map[string]interface{} `json:"options,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// MessageContent is the rendered message body handed to platform adapters.
type MessageContent struct {
	Text        string                   `json:"text"`
	Subject     string                   `json:"subject,omitempty"`
	Attachments []map[string]interface{} `json:"attachments,omitempty"`
}

// Envelope is what an adapter needs to address a single send.
type Envelope struct {
	TenantID      string
	PlatformID    string
	AddresseeType string
	AddresseeID   string
	JobID         string
}

// Platform is a tenant-scoped platform instance with encrypted credentials.
type Platform struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	Type        string    `json:"type"` // "telegram", "discord", "email", "sms"
	Name        string    `json:"name"`
	Credentials string    `json:"-"` // packed ciphertext, never serialized
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
