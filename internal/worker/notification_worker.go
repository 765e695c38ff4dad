package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/smart-inventory/internal/metrics"
	"github.com/flicky/smart-inventory/internal/model"
	"github.com/flicky/smart-inventory/internal/notify"
)

const (
	dlxExchange    = "notifications.dlx"
	dlqQueueName   = "notifications.dlq"
	idempotencyTTL = 24 * time.Hour
)

// Deduper remembers which messages were already delivered.
type Deduper interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

type redisDeduper struct{ rdb *redis.Client }

func NewRedisDeduper(rdb *redis.Client) Deduper {
	return &redisDeduper{rdb: rdb}
}

func deliveredKey(id string) string { return "email_sent:" + id }

func (d *redisDeduper) Seen(ctx context.Context, id string) (bool, error) {
	n, err := d.rdb.Exists(ctx, deliveredKey(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *redisDeduper) Mark(ctx context.Context, id string) error {
	return d.rdb.Set(ctx, deliveredKey(id), "1", idempotencyTTL).Err()
}

type NotificationWorker struct {
	channel *amqp.Channel
	mailer  notify.Mailer
	dedup   Deduper
	metrics *metrics.Metrics
	log     *slog.Logger
	done    chan struct{}
}

func NewNotificationWorker(
	ch *amqp.Channel,
	mailer notify.Mailer,
	dedup Deduper,
	m *metrics.Metrics,
	log *slog.Logger,
) *NotificationWorker {
	return &NotificationWorker{
		channel: ch,
		mailer:  mailer,
		dedup:   dedup,
		metrics: m,
		log:     log,
		done:    make(chan struct{}),
	}
}

// SetupRabbitMQ declares the email queue with its dead-letter exchange and queue.
func SetupRabbitMQ(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(dlqQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(dlqQueueName, notify.EmailQueue, dlxExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(notify.EmailQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlxExchange,
		"x-dead-letter-routing-key": notify.EmailQueue,
	}); err != nil {
		return fmt.Errorf("declare email queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}

func (w *NotificationWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(notify.EmailQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("notification worker started")
	return nil
}

func (w *NotificationWorker) Stop() { close(w.done) }

func (w *NotificationWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var email model.EmailMessage
	if err := json.Unmarshal(msg.Body, &email); err != nil {
		w.log.Error("unmarshal email message", "error", err)
		_ = msg.Nack(false, false)
		return
	}

	log := w.log.With("message_id", email.ID, "to", email.To)
	id := email.ID.String()

	seen, err := w.dedup.Seen(ctx, id)
	if err != nil {
		log.Error("check idempotency key", "error", err)
		_ = msg.Nack(false, true)
		return
	}
	if seen {
		log.Info("email already delivered, skipping")
		_ = msg.Ack(false)
		return
	}

	if err := w.mailer.Deliver(ctx, email); err != nil {
		log.Error("deliver email failed", "error", err)
		w.metrics.RecordEmail(false)
		_ = msg.Nack(false, false) // dead-lettered
		return
	}
	w.metrics.RecordEmail(true)

	if err := w.dedup.Mark(ctx, id); err != nil {
		log.Error("set idempotency key", "error", err)
	}

	_ = msg.Ack(false)
	log.Info("email delivered")
}
