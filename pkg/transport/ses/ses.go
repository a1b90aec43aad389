// Package ses forwards messages through the AWS SES v2 API.
package ses

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/inbucket/aliasrelay/pkg/config"
	"github.com/inbucket/aliasrelay/pkg/transport"
	"github.com/rs/zerolog/log"
)

// SendEmailAPI is the subset of the SES v2 client used by Sender.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Sender forwards messages using SES simple content.
type Sender struct {
	feedback string
	client   SendEmailAPI
}

var _ transport.Sender = &Sender{}

// New creates a Sender using the default AWS credential chain, or static credentials when both
// key fields are configured.
func New(ctx context.Context, cfg config.Transport) (*Sender, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.SESRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.SESRegion))
	}
	if cfg.SESAccessKeyID != "" && cfg.SESSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.SESAccessKeyID, cfg.SESSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(cfg.EnvelopeFrom, sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a Sender with a custom client, used for testing.  feedback receives
// bounces and complaints, and may be empty.
func NewWithClient(feedback string, client SendEmailAPI) *Sender {
	return &Sender{
		feedback: feedback,
		client:   client,
	}
}

// Name returns the transport name.
func (s *Sender) Name() string {
	return config.TransportSES
}

// Send submits msg to SES, returning the SES message ID.
func (s *Sender) Send(ctx context.Context, msg *transport.Outgoing) (string, error) {
	if msg.To == "" {
		return "", transport.ErrNoRecipient
	}

	out, err := s.client.SendEmail(ctx, buildInput(s.feedback, msg))
	if err != nil {
		return "", fmt.Errorf("SES SendEmail: %w", err)
	}

	id := aws.ToString(out.MessageId)
	log.Debug().Str("module", "transport").Str("to", msg.To).Str("messageid", id).
		Msg("Submitted to SES")
	return id, nil
}

// buildInput creates a SES SendEmailInput carrying both bodies.
func buildInput(feedback string, msg *transport.Outgoing) *sesv2.SendEmailInput {
	body := &types.Body{}
	if msg.HTML != "" {
		body.Html = &types.Content{
			Data:    aws.String(msg.HTML),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.Text != "" {
		body.Text = &types.Content{
			Data:    aws.String(msg.Text),
			Charset: aws.String("UTF-8"),
		}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: body,
			},
		},
	}
	if feedback != "" {
		input.FeedbackForwardingEmailAddress = aws.String(feedback)
	}

	return input
}
