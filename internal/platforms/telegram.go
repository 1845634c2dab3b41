// internal/platforms/telegram.go
package platforms

import (
	"context"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"courier-gateway/internal/models"
)

// TelegramAdapter sends messages through the Telegram Bot API.
type TelegramAdapter struct {
	bot *tele.Bot
}

// NewTelegramAdapter builds a bot client from the instance credentials.
// Credentials: {"botToken": "..."}.
func NewTelegramAdapter(creds Credentials) (*TelegramAdapter, error) {
	token, err := creds.require("botToken")
	if err != nil {
		return nil, err
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: nil, // outbound-only, no update polling
		Client: nil,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &TelegramAdapter{bot: bot}, nil
}

func (a *TelegramAdapter) SendMessage(ctx context.Context, envelope models.Envelope, content models.MessageContent) (string, error) {
	chatID, err := strconv.ParseInt(envelope.AddresseeID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("telegram addressee id must be a chat id: %w", err)
	}

	done := make(chan struct{})
	var msg *tele.Message
	var sendErr error
	go func() {
		defer close(done)
		msg, sendErr = a.bot.Send(tele.ChatID(chatID), content.Text)
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-done:
	}
	if sendErr != nil {
		return "", sendErr
	}
	return strconv.Itoa(msg.ID), nil
}

// TelegramFactory returns the registry factory for telegram platforms.
func TelegramFactory() Factory {
	return func(creds Credentials) (Adapter, error) {
		return NewTelegramAdapter(creds)
	}
}
