package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// Key schema:
//
//	options:events:<type>   pub/sub channel per event type
//	options:events          stream of every event, trimmed to ~streamMaxLen
const (
	EventChannelPrefix = "options:events:"
	EventStream        = "options:events"

	streamMaxLen   int64 = 10000
	subscribeQueue       = 128
)

// SignalBus carries ledger events between hosts. Live subscribers use
// pub/sub; the stream keeps recent history for clients catching up.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.rdb}
}

// PublishEvent broadcasts ev and appends it to the stream in one round trip.
func (sb *SignalBus) PublishEvent(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", ev.Type, err)
	}
	_, err = sb.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, EventChannelPrefix+ev.Type, payload)
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: EventStream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]any{"payload": payload},
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: publish event %s: %w", ev.Type, err)
	}
	return nil
}

// SubscribeEvents decodes events published by any host until ctx is done.
// Malformed payloads are skipped.
func (sb *SignalBus) SubscribeEvents(ctx context.Context) (<-chan domain.Event, error) {
	pubsub := sb.rdb.PSubscribe(ctx, EventChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe events: %w", err)
	}

	out := make(chan domain.Event, subscribeQueue)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// ReadEvents returns up to count stream entries after afterID ("0" reads
// from the oldest retained entry). No entries is not an error.
func (sb *SignalBus) ReadEvents(ctx context.Context, afterID string, count int) ([]domain.StreamMessage, error) {
	res, err := sb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{EventStream, afterID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: read events after %s: %w", afterID, err)
	}

	var out []domain.StreamMessage
	for _, stream := range res {
		for _, msg := range stream.Messages {
			switch v := msg.Values["payload"].(type) {
			case string:
				out = append(out, domain.StreamMessage{ID: msg.ID, Payload: []byte(v)})
			case []byte:
				out = append(out, domain.StreamMessage{ID: msg.ID, Payload: v})
			}
		}
	}
	return out, nil
}

var _ domain.EventPublisher = (*SignalBus)(nil)
