package email

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the subset of the SES client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput, opts ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESClient struct {
	api  SESAPI
	from string
}

// NewSESClient builds an SES sender. Empty keys fall back to the SDK's default
// credential chain.
func NewSESClient(region, accessKey, secretKey, from string) *SESClient {
	opts := ses.Options{Region: region}
	if accessKey != "" && secretKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
	}
	return &SESClient{api: ses.New(opts), from: from}
}

// NewSESClientWithAPI is used by tests to inject a fake SES API.
func NewSESClientWithAPI(api SESAPI, from string) *SESClient {
	return &SESClient{api: api, from: from}
}

func (c *SESClient) SendLoginCode(ctx context.Context, to, code string) error {
	msg := LoginCodeMessage(code)
	_, err := c.api.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.TextBody)},
				Html: &types.Content{Data: aws.String(msg.HTMLBody)},
			},
		},
		Source: aws.String(c.from),
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}
