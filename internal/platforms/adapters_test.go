// internal/platforms/adapters_test.go
package platforms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpclient "courier-gateway/internal/common/http"
	"courier-gateway/internal/models"
)

type mockSES struct {
	input *ses.SendEmailInput
	err   error
}

func (m *mockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("ses-msg-1")}, nil
}

type mockSNS struct {
	input *sns.PublishInput
	err   error
}

func (m *mockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &sns.PublishOutput{MessageId: aws.String("sns-msg-1")}, nil
}

func TestEmailAdapterSendsThroughSES(t *testing.T) {
	mock := &mockSES{}
	adapter := &EmailAdapter{client: mock, fromEmail: "noreply@example.com"}

	id, err := adapter.SendMessage(context.Background(),
		models.Envelope{AddresseeID: "user@example.com"},
		models.MessageContent{Text: "hello", Subject: "Greetings"},
	)
	require.NoError(t, err)
	assert.Equal(t, "ses-msg-1", id)

	require.NotNil(t, mock.input)
	assert.Equal(t, []string{"user@example.com"}, mock.input.Destination.ToAddresses)
	assert.Equal(t, "Greetings", aws.ToString(mock.input.Message.Subject.Data))
	assert.Equal(t, "noreply@example.com", aws.ToString(mock.input.Source))
}

func TestEmailAdapterDefaultSubject(t *testing.T) {
	mock := &mockSES{}
	adapter := &EmailAdapter{client: mock, fromEmail: "noreply@example.com"}

	_, err := adapter.SendMessage(context.Background(),
		models.Envelope{AddresseeID: "user@example.com"},
		models.MessageContent{Text: "hello"},
	)
	require.NoError(t, err)
	assert.Equal(t, "Notification", aws.ToString(mock.input.Message.Subject.Data))
}

func TestEmailAdapterPropagatesError(t *testing.T) {
	adapter := &EmailAdapter{client: &mockSES{err: errors.New("throttled")}, fromEmail: "n@example.com"}

	_, err := adapter.SendMessage(context.Background(),
		models.Envelope{AddresseeID: "user@example.com"},
		models.MessageContent{Text: "hello"},
	)
	assert.Error(t, err)
}

func TestSMSAdapterSendsThroughSNS(t *testing.T) {
	mock := &mockSNS{}
	adapter := &SMSAdapter{client: mock}

	id, err := adapter.SendMessage(context.Background(),
		models.Envelope{AddresseeID: "+15551234567"},
		models.MessageContent{Text: "your code is 1234"},
	)
	require.NoError(t, err)
	assert.Equal(t, "sns-msg-1", id)
	assert.Equal(t, "+15551234567", aws.ToString(mock.input.PhoneNumber))
	assert.Equal(t, "your code is 1234", aws.ToString(mock.input.Message))
}

func TestDiscordAdapterSend(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"987654321"}`))
	}))
	defer srv.Close()

	adapter := &DiscordAdapter{
		token:  "bot-token",
		client: httpclient.NewClient(time.Second),
		base:   srv.URL,
	}

	id, err := adapter.SendMessage(context.Background(),
		models.Envelope{AddresseeID: "111222333"},
		models.MessageContent{Text: "hello channel"},
	)
	require.NoError(t, err)
	assert.Equal(t, "987654321", id)
	assert.Equal(t, "Bot bot-token", gotAuth)
	assert.Equal(t, "/channels/111222333/messages", gotPath)
}

func TestDiscordAdapterErrorShapes(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		contains string
	}{
		{name: "forbidden maps to access denied", status: http.StatusForbidden, contains: "Access denied"},
		{name: "missing channel maps to not found", status: http.StatusNotFound, contains: "not found"},
		{name: "server error keeps status", status: http.StatusBadGateway, contains: "502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			adapter := &DiscordAdapter{
				token:  "bot-token",
				client: httpclient.NewClient(time.Second),
				base:   srv.URL,
			}
			_, err := adapter.SendMessage(context.Background(),
				models.Envelope{AddresseeID: "889911"},
				models.MessageContent{Text: "x"},
			)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.NotContains(t, err.Error(), "889911")
		})
	}
}

func TestTelegramAdapterRequiresBotToken(t *testing.T) {
	_, err := NewTelegramAdapter(Credentials{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "botToken")
}

func TestTelegramAdapterRejectsNonNumericChatID(t *testing.T) {
	adapter := &TelegramAdapter{}

	_, err := adapter.SendMessage(context.Background(),
		models.Envelope{AddresseeID: "not-a-number"},
		models.MessageContent{Text: "x"},
	)
	assert.Error(t, err)
}
