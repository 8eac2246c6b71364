// Package kafka publishes committed ledger events to a Kafka topic as JSON.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds the sink parameters.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Publisher implements domain.EventPublisher on a Kafka writer. Messages are
// keyed by transaction signature so events of one transaction stay ordered
// within a partition.
type Publisher struct {
	writer messageWriter
	topic  string
}

var _ domain.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a Publisher with a least-bytes balanced writer.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
	}
	if cfg.ClientID != "" {
		w.Transport = &kafka.Transport{ClientID: cfg.ClientID}
	}
	return &Publisher{writer: w, topic: cfg.Topic}, nil
}

// PublishEvent serializes ev and writes it to the topic.
func (p *Publisher) PublishEvent(ctx context.Context, ev domain.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: marshal event %s: %w", ev.Type, err)
	}
	key := ev.Signature
	if key == "" {
		key = ev.Type
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  ev.Time,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s to %s: %w", ev.Type, p.topic, err)
	}
	return nil
}

// Close flushes pending messages and releases the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
