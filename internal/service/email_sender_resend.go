package service

import (
	"context"
	"errors"
	"strings"

	"github.com/resend/resend-go/v2"
)

var errMailerNotConfigured = errors.New("email sender not configured")

type ResendMailer struct {
	client *resend.Client
	From   string
}

func NewResendMailer(apiKey string, from string) *ResendMailer {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(from) == "" {
		return &ResendMailer{}
	}
	return &ResendMailer{
		client: resend.NewClient(apiKey),
		From:   from,
	}
}

func (m *ResendMailer) Send(ctx context.Context, to string, subject string, htmlBody string) error {
	if m.client == nil {
		return errMailerNotConfigured
	}
	request := &resend.SendEmailRequest{
		From:    m.From,
		To:      []string{to},
		Subject: subject,
		Html:    htmlBody,
	}

	// the SDK call takes no context, so the deadline is enforced around it
	done := make(chan error, 1)
	go func() {
		_, err := m.client.Emails.Send(request)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
