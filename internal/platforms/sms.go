// internal/platforms/sms.go
package platforms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"courier-gateway/internal/models"
)

// SNSService is the subset of the SNS client used here, split out for mocking.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMSAdapter delivers messages as SMS through AWS SNS. The addressee id is
// the E.164 phone number.
type SMSAdapter struct {
	client SNSService
}

// NewSMSAdapter builds an SNS-backed adapter. Credentials: {"region": "..."}.
func NewSMSAdapter(creds Credentials) (*SMSAdapter, error) {
	region := creds["region"]
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &SMSAdapter{client: sns.NewFromConfig(awsCfg)}, nil
}

func (a *SMSAdapter) SendMessage(ctx context.Context, envelope models.Envelope, content models.MessageContent) (string, error) {
	out, err := a.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(envelope.AddresseeID),
		Message:     aws.String(content.Text),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}

// SMSFactory returns the registry factory for sms platforms.
func SMSFactory() Factory {
	return func(creds Credentials) (Adapter, error) {
		return NewSMSAdapter(creds)
	}
}
