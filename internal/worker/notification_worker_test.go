package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/smart-inventory/internal/metrics"
	"github.com/flicky/smart-inventory/internal/model"
)

type fakeAck struct {
	acked   int
	nacked  int
	requeue bool
}

func (f *fakeAck) Ack(uint64, bool) error { f.acked++; return nil }
func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked++
	f.requeue = requeue
	return nil
}
func (f *fakeAck) Reject(uint64, bool) error { return nil }

type mapDeduper struct {
	seen map[string]bool
	err  error
}

func (d *mapDeduper) Seen(_ context.Context, id string) (bool, error) { return d.seen[id], d.err }
func (d *mapDeduper) Mark(_ context.Context, id string) error {
	d.seen[id] = true
	return nil
}

type fakeMailer struct {
	delivered []model.EmailMessage
	err       error
}

func (m *fakeMailer) Deliver(_ context.Context, msg model.EmailMessage) error {
	if m.err != nil {
		return m.err
	}
	m.delivered = append(m.delivered, msg)
	return nil
}

func newWorker(mailer *fakeMailer, dedup *mapDeduper) (*NotificationWorker, *metrics.Metrics) {
	m := metrics.New()
	return NewNotificationWorker(nil, mailer, dedup, m, slog.New(slog.NewTextHandler(io.Discard, nil))), m
}

func delivery(t *testing.T, ack *fakeAck, msg model.EmailMessage) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}
}

func TestProcessMessage_Delivers(t *testing.T) {
	mailer := &fakeMailer{}
	dedup := &mapDeduper{seen: map[string]bool{}}
	w, m := newWorker(mailer, dedup)
	ack := &fakeAck{}
	msg := model.EmailMessage{ID: uuid.New(), To: "jane@example.com", Subject: "Hi"}

	w.processMessage(context.Background(), delivery(t, ack, msg))
	assert.Equal(t, 1, ack.acked)
	require.Len(t, mailer.delivered, 1)
	assert.True(t, dedup.seen[msg.ID.String()])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSent.WithLabelValues("delivered")))

	w.processMessage(context.Background(), delivery(t, ack, msg))
	assert.Equal(t, 2, ack.acked)
	assert.Len(t, mailer.delivered, 1)
}

func TestProcessMessage_DeliveryFailureDeadLetters(t *testing.T) {
	w, m := newWorker(&fakeMailer{err: errors.New("sendgrid: 500")}, &mapDeduper{seen: map[string]bool{}})
	ack := &fakeAck{}

	w.processMessage(context.Background(), delivery(t, ack, model.EmailMessage{ID: uuid.New()}))
	assert.Equal(t, 1, ack.nacked)
	assert.False(t, ack.requeue)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSent.WithLabelValues("failed")))
}

func TestProcessMessage_BadPayload(t *testing.T) {
	w, _ := newWorker(&fakeMailer{}, &mapDeduper{seen: map[string]bool{}})
	ack := &fakeAck{}

	w.processMessage(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{")})
	assert.Equal(t, 1, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestProcessMessage_DeduperDownRequeues(t *testing.T) {
	mailer := &fakeMailer{}
	w, _ := newWorker(mailer, &mapDeduper{seen: map[string]bool{}, err: errors.New("redis down")})
	ack := &fakeAck{}

	w.processMessage(context.Background(), delivery(t, ack, model.EmailMessage{ID: uuid.New()}))
	assert.Equal(t, 1, ack.nacked)
	assert.True(t, ack.requeue)
	assert.Empty(t, mailer.delivered)
}
