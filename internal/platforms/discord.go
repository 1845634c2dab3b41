// internal/platforms/discord.go
package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	stderrors "courier-gateway/internal/common/errors"
	httpclient "courier-gateway/internal/common/http"
	"courier-gateway/internal/models"
)

const discordAPIBase = "https://discord.com/api/v10"

// DiscordAdapter sends messages through the Discord REST API with a bot token.
type DiscordAdapter struct {
	token  string
	client *httpclient.Client
	base   string
}

// NewDiscordAdapter builds an adapter from the instance credentials.
// Credentials: {"botToken": "..."}.
func NewDiscordAdapter(creds Credentials) (*DiscordAdapter, error) {
	token, err := creds.require("botToken")
	if err != nil {
		return nil, err
	}
	return &DiscordAdapter{
		token:  token,
		client: httpclient.NewClient(15 * time.Second),
		base:   discordAPIBase,
	}, nil
}

func (a *DiscordAdapter) SendMessage(ctx context.Context, envelope models.Envelope, content models.MessageContent) (string, error) {
	body, err := json.Marshal(map[string]string{"content": content.Text})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/channels/%s/messages", a.base, envelope.AddresseeID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bot "+a.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.DoWithContext(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// Error strings never echo the channel id; it is logged masked upstream.
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch {
	case resp.StatusCode == http.StatusForbidden:
		return "", stderrors.NewAccessDeniedError("discord: bot lacks access to channel")
	case resp.StatusCode == http.StatusNotFound:
		return "", errors.New("discord: channel not found")
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("discord: send failed with status %d: %s", resp.StatusCode, respBody)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("discord: decode response: %w", err)
	}
	return result.ID, nil
}

// DiscordFactory returns the registry factory for discord platforms.
func DiscordFactory() Factory {
	return func(creds Credentials) (Adapter, error) {
		return NewDiscordAdapter(creds)
	}
}
