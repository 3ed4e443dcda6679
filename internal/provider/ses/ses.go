// Package ses implements a Provider that sends emails via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/quote-intake/internal/email"
)

// maxAttempts bounds the SDK's standard retryer, first call included.
const maxAttempts = 3

// Config holds the settings for creating a Provider.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// ConfigurationSet is optional and tags every send for SES event publishing.
	ConfigurationSet string
}

// Provider sends emails via the AWS SES v2 API. The From header of each
// message is used as the sending identity.
type Provider struct {
	client           SendEmailAPI
	configurationSet string
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a Provider from the default AWS credential chain, overridden by
// static keys when both are set. Throttling and 5xx responses are retried by
// the SDK's standard retryer.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMode(aws.RetryModeStandard),
		awsconfig.WithRetryMaxAttempts(maxAttempts),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	p := NewWithClient(sesv2.NewFromConfig(awsCfg))
	p.configurationSet = cfg.ConfigurationSet
	return p, nil
}

// NewWithClient creates a Provider around an existing client.
func NewWithClient(client SendEmailAPI) *Provider {
	return &Provider{client: client}
}

// Send delivers msg via SES. Messages with attachments go out as raw MIME,
// everything else through the simple content API.
func (p *Provider) Send(ctx context.Context, msg *email.Email) error {
	input, err := p.buildInput(msg)
	if err != nil {
		return err
	}

	out, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses: send email: %w", err)
	}
	if out != nil && out.MessageId != nil {
		slog.Debug("SES accepted message", "ses_message_id", *out.MessageId)
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "ses"
}

func (p *Provider) buildInput(msg *email.Email) (*sesv2.SendEmailInput, error) {
	input := &sesv2.SendEmailInput{}
	if p.configurationSet != "" {
		input.ConfigurationSetName = aws.String(p.configurationSet)
	}

	if msg.HasAttachments() {
		raw, err := email.BuildRaw(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to build raw message: %w", err)
		}
		input.Content = &types.EmailContent{Raw: &types.RawMessage{Data: raw}}
		return input, nil
	}

	body := &types.Body{
		Html: &types.Content{Data: aws.String(msg.HtmlBody), Charset: aws.String("UTF-8")},
	}

	input.FromEmailAddress = aws.String(msg.From)
	input.Destination = &types.Destination{ToAddresses: msg.To}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	input.Content = &types.EmailContent{
		Simple: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
	}
	return input, nil
}
