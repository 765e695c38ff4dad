package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/flicky/smart-inventory/internal/model"
)

// Mailer performs the actual delivery of a queued email.
type Mailer interface {
	Deliver(ctx context.Context, msg model.EmailMessage) error
}

type SendGridMailer struct {
	client     *sendgrid.Client
	senderAddr string
	senderName string
}

func NewSendGridMailer(apiKey, senderAddr, senderName string) *SendGridMailer {
	return &SendGridMailer{
		client:     sendgrid.NewSendClient(apiKey),
		senderAddr: senderAddr,
		senderName: senderName,
	}
}

func (m *SendGridMailer) Deliver(ctx context.Context, msg model.EmailMessage) error {
	from := mail.NewEmail(m.senderName, m.senderAddr)
	to := mail.NewEmail("", msg.To)
	email := mail.NewSingleEmail(from, msg.Subject, to, plainText(msg.HTMLBody), msg.HTMLBody)

	resp, err := m.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// LogMailer is used when no mail provider is configured.
type LogMailer struct {
	log *slog.Logger
}

func NewLogMailer(log *slog.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Deliver(_ context.Context, msg model.EmailMessage) error {
	m.log.Info("email delivered to log", "id", msg.ID, "to", msg.To, "subject", msg.Subject)
	return nil
}
