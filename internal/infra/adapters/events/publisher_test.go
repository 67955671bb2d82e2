package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-billing/internal/config"
	"license-billing/internal/domain/ports/adapter"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { f.closed = true; return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	logger := zerolog.Nop()
	p := &KafkaPublisher{w: w, writeTimeout: time.Second, log: &logger}

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := p.Publish(context.Background(), adapter.BillingEvent{
		Type: adapter.EventLicenseMinted, OrderID: "sub_1", UserID: "user-1", Credits: 20, LicenseID: 7, OccurredAt: at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	m := w.msgs[0]
	assert.Equal(t, "sub_1", string(m.Key))
	assert.Equal(t, "license.minted", string(m.Headers[0].Value))
	var got map[string]any
	require.NoError(t, json.Unmarshal(m.Value, &got))
	assert.Equal(t, "license.minted", got["type"])
	assert.EqualValues(t, 20, got["credits"])
	assert.Equal(t, "2026-01-02T03:04:05Z", got["occurred_at"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	logger := zerolog.Nop()
	p := &KafkaPublisher{w: &fakeWriter{err: errors.New("broker down")}, writeTimeout: time.Second, log: &logger}
	err := p.Publish(context.Background(), adapter.BillingEvent{Type: adapter.EventOrderFailed, OrderID: "cr_1"})
	assert.ErrorContains(t, err, "broker down")
}

func TestNew_FallsBackToNoop(t *testing.T) {
	logger := zerolog.Nop()
	pub, err := New(config.KafkaConfig{}, &logger)
	require.NoError(t, err)
	assert.IsType(t, NoopPublisher{}, pub)
	assert.NoError(t, pub.Publish(context.Background(), adapter.BillingEvent{}))

	pub, err = New(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "billing-events"}, &logger)
	require.NoError(t, err)
	assert.IsType(t, &KafkaPublisher{}, pub)
	_ = pub.Close()
}
