package channel

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/spherical/slide-deck/internal/domain"
)

// EventTopic is the pub/sub topic a job's events are published on.
func EventTopic(jobID string) string {
	return "events:" + jobID
}

// Subscriber opens a pub/sub subscription on a topic.
// cache.RedisClient satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) *redis.PubSub
}

// RedisDialer streams events from Redis pub/sub.
type RedisDialer struct {
	Subscriber Subscriber
}

// NewRedisDialer creates a RedisDialer.
func NewRedisDialer(sub Subscriber) *RedisDialer {
	return &RedisDialer{Subscriber: sub}
}

// Dial implements Dialer. The subscription is confirmed before returning.
func (d *RedisDialer) Dial(ctx context.Context, jobID string) (Conn, error) {
	ps := d.Subscriber.Subscribe(ctx, EventTopic(jobID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, domain.TransportError("failed to subscribe to event topic", err)
	}
	return &redisConn{ctx: ctx, ps: ps}, nil
}

type redisConn struct {
	ctx context.Context
	ps  *redis.PubSub
}

func (c *redisConn) ReadMessage() ([]byte, error) {
	msg, err := c.ps.ReceiveMessage(c.ctx)
	if err != nil {
		return nil, domain.TransportError("pubsub receive failed", err)
	}
	return []byte(msg.Payload), nil
}

func (c *redisConn) Close() error {
	return c.ps.Close()
}
