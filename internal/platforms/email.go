// internal/platforms/email.go
package platforms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"courier-gateway/internal/models"
)

// SESService is the subset of the SES client used here, split out for mocking.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailAdapter delivers messages as email through AWS SES. The addressee id
// is the recipient address.
type EmailAdapter struct {
	client    SESService
	fromEmail string
}

// NewEmailAdapter builds an SES-backed adapter. Credentials:
// {"fromEmail": "...", "region": "..."}. AWS keys come from the ambient
// environment, never from platform rows.
func NewEmailAdapter(creds Credentials) (*EmailAdapter, error) {
	from, err := creds.require("fromEmail")
	if err != nil {
		return nil, err
	}
	region := creds["region"]
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &EmailAdapter{
		client:    ses.NewFromConfig(awsCfg),
		fromEmail: from,
	}, nil
}

func (a *EmailAdapter) SendMessage(ctx context.Context, envelope models.Envelope, content models.MessageContent) (string, error) {
	subject := content.Subject
	if subject == "" {
		subject = "Notification"
	}

	out, err := a.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{envelope.AddresseeID},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(content.Text)},
			},
		},
		Source: aws.String(a.fromEmail),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}

// EmailFactory returns the registry factory for email platforms.
func EmailFactory() Factory {
	return func(creds Credentials) (Adapter, error) {
		return NewEmailAdapter(creds)
	}
}
