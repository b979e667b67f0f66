package mail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

// Mailer sends templated transactional email.
type Mailer interface {
	Send(ctx context.Context, to, template string, data map[string]string) error
}

type SESConfig struct {
	Region    string
	FromEmail string
}

// SESMailer sends booking emails via AWS SES.
type SESMailer struct {
	client *ses.Client
	from   string
	logger *zap.Logger
}

func NewSESMailer(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESMailer, error) {

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	if cfg.FromEmail == "" {
		cfg.FromEmail = "noreply@poupagenda.site"
	}
	return &SESMailer{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromEmail,
		logger: logger,
	}, nil
}

// Send renders the named template and delivers it via SES.
func (m *SESMailer) Send(ctx context.Context, to, template string, data map[string]string) error {
	if to == "" {
		return fmt.Errorf("email missing 'to' address")
	}

	subject, html, err := Render(template, data)
	if err != nil {
		return err
	}

	input := &ses.SendEmailInput{
		Source: aws.String(m.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(html),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	m.logger.Info("email sent via SES",
		zap.String("to", to),
		zap.String("template", template),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

// LogMailer logs instead of sending. Local development stand-in when
// AWS credentials are not configured.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, to, template string, data map[string]string) error {
	subject, _, err := Render(template, data)
	if err != nil {
		return err
	}
	m.logger.Info("LOG MAILER: would send email",
		zap.String("to", to),
		zap.String("template", template),
		zap.String("subject", subject),
	)
	return nil
}
