// Package redisstream appends committed domain events to a Redis stream.
package redisstream

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"pharmanet/internal/core"
)

var _ core.EventPublisher = (*Publisher)(nil)

// DefaultStream is used when no stream name is configured.
const DefaultStream = "pharmanet:events"

// Publisher writes one stream entry per event.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithMaxLen caps the stream length approximately.
func WithMaxLen(n int64) Option {
	return func(p *Publisher) { p.maxLen = n }
}

// New wraps client. An empty stream uses DefaultStream.
func New(client *redis.Client, stream string, opts ...Option) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	p := &Publisher{client: client, stream: stream}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish implements core.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, event core.Event) error {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"name":      event.Name,
			"key":       event.Key,
			"tx_id":     event.TxID,
			"caller":    event.Caller,
			"timestamp": event.Timestamp.UnixMilli(),
			"payload":   string(event.Payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error { return p.client.Close() }
