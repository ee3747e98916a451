package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBroker fans out change signals across server instances with Redis
// pub/sub. Reconnection after network loss is handled by go-redis.
type RedisBroker struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisBroker wraps a connected client. Channels are named prefix+topic.
func NewRedisBroker(rdb *redis.Client, prefix string) *RedisBroker {
	return &RedisBroker{rdb: rdb, prefix: prefix}
}

func (b *RedisBroker) channel(topic string) string {
	return b.prefix + topic
}

// Publish sends a change signal on the topic channel
func (b *RedisBroker) Publish(ctx context.Context, topic string) error {
	return b.rdb.Publish(ctx, b.channel(topic), "changed").Err()
}

// Subscribe listens on the topic channel. The subscription is confirmed
// before it is returned so no signal published afterwards is missed.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	ps := b.rdb.Subscribe(ctx, b.channel(topic))
	// wait for the subscribe confirmation
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan struct{}, 1)
	in := ps.Channel()
	go func() {
		defer close(out)
		for range in {
			signal(out)
		}
	}()

	return &Subscription{
		C: out,
		closeFn: func() {
			// closing the pubsub closes in, which ends the forwarder
			_ = ps.Close()
		},
	}, nil
}

// Close is a no-op; the client is shared and closed by its owner
func (b *RedisBroker) Close() error {
	return nil
}
