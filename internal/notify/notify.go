// Package notify delivers emails on behalf of the services. Sending never
// blocks on the mail provider: messages are queued on RabbitMQ and delivered
// by the notification worker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flicky/smart-inventory/internal/model"
)

const EmailQueue = "notifications"

type Notifier interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
}

// Publisher is the subset of *amqp.Channel used to enqueue messages.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type AMQPNotifier struct {
	pub Publisher
}

func NewAMQPNotifier(pub Publisher) *AMQPNotifier {
	return &AMQPNotifier{pub: pub}
}

func (n *AMQPNotifier) SendEmail(ctx context.Context, to, subject, htmlBody string) error {
	msg := model.EmailMessage{ID: uuid.New(), To: to, Subject: subject, HTMLBody: htmlBody}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}
	err = n.pub.PublishWithContext(ctx, "", EmailQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    msg.ID.String(),
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return fmt.Errorf("publish email: %w", err)
	}
	return nil
}

// LogNotifier writes emails to the log instead of sending them.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendEmail(_ context.Context, to, subject, _ string) error {
	n.log.Info("email not sent, notifier disabled", "to", to, "subject", subject)
	return nil
}
