package emailsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
)

const sesSendTimeout = 10 * time.Second

// sesSender is the part of *sesv2.Client used to send mail.
type sesSender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type sesService struct {
	client     sesSender
	from       string
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*sesService)(nil)

// NewSESService sends mail through Amazon SES, with credentials from the default AWS chain.
func NewSESService(logger core.Logger, conf *core.Config) (*sesService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(conf.Notify.SESRegion))
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS config")
	}
	from := conf.DefaultFromEmail()
	return &sesService{
		client:     sesv2.NewFromConfig(cfg),
		from:       from.String(),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}, nil
}

func (svc sesService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := msg.Render(); err != nil {
				svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
				return
			}
			if !msg.HasRecipients() || !msg.HasContent() {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), sesSendTimeout)
			defer cancel()
			if err := svc.send(ctx, *msg); err != nil {
				svc.logger.Error(fmt.Sprintf("sending email: %v", err), err)
			}
		}()
	}
}

func (svc sesService) prepare(msg core.EmailMessage) *sesv2.SendEmailInput {
	var to, cc, bcc []string
	for _, a := range msg.To {
		to = append(to, a.String())
	}
	for _, a := range msg.Cc {
		cc = append(cc, a.String())
	}
	for _, a := range msg.Bcc {
		bcc = append(bcc, a.String())
	}

	body := &types.Body{
		Text: &types.Content{Data: aws.String(msg.TextContent), Charset: aws.String("UTF-8")},
	}
	if msg.HTMLContent != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String("UTF-8")}
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(svc.from),
		Destination: &types.Destination{
			ToAddresses:  to,
			CcAddresses:  cc,
			BccAddresses: bcc,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(svc.subjPrefix + msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	}
}

func (svc sesService) send(ctx context.Context, msg core.EmailMessage) error {
	if _, err := svc.client.SendEmail(ctx, svc.prepare(msg)); err != nil {
		return errors.Wrap(err, "calling SES SendEmail")
	}
	return nil
}
