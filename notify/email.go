package notify

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// Email sends each message as a plain-text email through Resend.
type Email struct {
	From    string
	To      []string
	Subject string

	client *resend.Client
	log    *zap.SugaredLogger
}

// EmailOption configures an Email notifier.
type EmailOption func(*Email)

// WithEmailLogger sets the logger the Email notifier uses.
func WithEmailLogger(logger *zap.SugaredLogger) EmailOption {
	return func(e *Email) {
		e.log = logger
	}
}

// WithEmailBaseURL replaces the Resend API base URL.
func WithEmailBaseURL(base *url.URL) EmailOption {
	return func(e *Email) {
		e.client.BaseURL = base
	}
}

// NewEmail returns a notifier mailing to from from, with subject on every
// message.
func NewEmail(apiKey, from string, to []string, subject string, options ...EmailOption) (*Email, error) {
	if apiKey == "" {
		return nil, errors.New("resend API key must be specified")
	}
	if from == "" || len(to) == 0 {
		return nil, errors.New("email sender and at least one recipient must be specified")
	}
	e := &Email{
		From:    from,
		To:      to,
		Subject: subject,
		client:  resend.NewCustomClient(initHTTPClient(defaultTimeout), apiKey),
		log:     zap.NewNop().Sugar(),
	}
	for _, o := range options {
		o(e)
	}
	return e, nil
}

// Send implements followerwatch.Notifier.
func (e *Email) Send(ctx context.Context, message string) error {
	sent, err := e.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    e.From,
		To:      e.To,
		Subject: e.Subject,
		Text:    message,
	})
	if err != nil {
		return errors.Wrap(err, "error sending email via resend")
	}
	e.log.Infow("sent email",
		"message_id", sent.Id,
		"to", e.To)
	return nil
}
