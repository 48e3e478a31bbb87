package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// Channel delivers one alert to one recipient.
type Channel interface {
	Send(ctx context.Context, alert Alert) error
}

var _ Channel = (*LogChannel)(nil)

// LogChannel writes alerts to the log instead of delivering them.
type LogChannel struct{}

func NewLogChannel() *LogChannel {
	return &LogChannel{}
}

func (c *LogChannel) Send(ctx context.Context, alert Alert) error {
	slog.Info("Golden slot alert",
		"recipient", alert.Recipient,
		"subject", alert.Subject(),
		"link", alert.BookingLink)
	return nil
}

type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

var _ Channel = (*EmailChannel)(nil)

type EmailChannel struct {
	from   string
	sender emailSender
}

// NewEmailChannel returns a Resend-backed channel. Without an API key every
// Send is a no-op.
func NewEmailChannel(apiKey, from string) *EmailChannel {
	c := &EmailChannel{from: from}
	if apiKey != "" {
		c.sender = resend.NewClient(apiKey).Emails
	}
	return c
}

func (c *EmailChannel) Send(ctx context.Context, alert Alert) error {
	if c.sender == nil || alert.Recipient == "" {
		return nil
	}

	body, err := alert.HTML()
	if err != nil {
		return err
	}

	resp, err := c.sender.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{alert.Recipient},
		Subject: alert.Subject(),
		Html:    body,
	})
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", alert.Recipient, err)
	}

	slog.Debug("Alert email sent", "recipient", alert.Recipient, "id", resp.Id)
	return nil
}
