package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis pub/sub channel report events go through.
const DefaultChannel = "straymandu:reports"

// RedisBroker fans events out across API instances through Redis pub/sub.
type RedisBroker struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

// NewRedisBroker wraps an existing client.
func NewRedisBroker(client *redis.Client, channel string, log *zap.Logger) *RedisBroker {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroker{client: client, channel: channel, log: log}
}

// Publish serializes ev as JSON onto the channel.
func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe opens a Redis subscription and decodes messages until cancel is
// called or ctx ends.
func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	ps := b.client.Subscribe(ctx, b.channel)
	// Receive blocks until the subscription is confirmed so callers do not
	// miss events published right after Subscribe returns.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	out := make(chan Event, subscriberBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.log.Warn("discarding malformed feed message", zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				default:
					b.log.Warn("feed subscriber lagging, event dropped", zap.String("type", string(ev.Type)))
				}
			}
		}
	}()
	return out, cancel, nil
}
