package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishEvent(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w, topic: "options.events"}
	at := time.Unix(1700000000, 0).UTC()

	ev := domain.Event{
		Type:      domain.EventPredictionSettled,
		Signature: "5sig",
		Slot:      12,
		Payload:   json.RawMessage(`{"id":1,"winning":true}`),
		Time:      at,
	}
	require.NoError(t, p.PublishEvent(context.Background(), ev))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, []byte("5sig"), msg.Key)
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, ev.Type, decoded.Type)
	assert.Equal(t, ev.Slot, decoded.Slot)
	assert.JSONEq(t, string(ev.Payload), string(decoded.Payload))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishEventKeysByTypeWithoutSignature(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w, topic: "t"}
	require.NoError(t, p.PublishEvent(context.Background(), domain.Event{Type: domain.EventSettlementDue}))
	assert.Equal(t, []byte(domain.EventSettlementDue), w.msgs[0].Key)
	assert.False(t, w.msgs[0].Time.IsZero())
}

func TestPublishEventWrapsWriterError(t *testing.T) {
	p := &Publisher{writer: &fakeWriter{err: errors.New("leader not available")}, topic: "t"}
	err := p.PublishEvent(context.Background(), domain.Event{Type: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestNewPublisherNeedsBrokers(t *testing.T) {
	_, err := NewPublisher(Config{Topic: "t"})
	assert.Error(t, err)
}
