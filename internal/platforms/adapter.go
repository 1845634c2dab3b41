// internal/platforms/adapter.go
package platforms

import (
	"context"
	"encoding/json"
	"fmt"

	"courier-gateway/internal/models"
)

// Platform type strings stored on platform rows.
const (
	TypeTelegram = "telegram"
	TypeDiscord  = "discord"
	TypeEmail    = "email"
	TypeSMS      = "sms"
)

// Adapter sends one message to one addressee on a third-party platform.
// Implementations must be safe for concurrent use once created.
type Adapter interface {
	SendMessage(ctx context.Context, envelope models.Envelope, content models.MessageContent) (providerMessageID string, err error)
}

// Credentials is the decrypted credential blob of a platform instance.
type Credentials map[string]string

// ParseCredentials decodes the decrypted JSON credential payload.
func ParseCredentials(plaintext string) (Credentials, error) {
	var creds Credentials
	if err := json.Unmarshal([]byte(plaintext), &creds); err != nil {
		return nil, fmt.Errorf("invalid credentials payload: %w", err)
	}
	return creds, nil
}

func (c Credentials) require(key string) (string, error) {
	v := c[key]
	if v == "" {
		return "", fmt.Errorf("invalid credentials: missing %q", key)
	}
	return v, nil
}
