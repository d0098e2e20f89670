package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spherical/slide-deck/internal/domain"
)

const (
	defaultRedisPrefix = "slide-deck:"
	pingTimeout        = 5 * time.Second
)

// RedisConfig holds Redis connection configuration. URL, when set, wins over
// the discrete fields.
type RedisConfig struct {
	URL      string
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

func (cfg RedisConfig) options() (*redis.Options, error) {
	if cfg.URL == "" {
		return &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, domain.ConfigError("invalid redis url", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return opts, nil
}

// RedisClient implements Client on Redis. Every key and pub/sub topic is
// namespaced with the configured prefix, so job event topics share the
// document cache's connection.
type RedisClient struct {
	client *redis.Client
	prefix string
}

// NewRedisClient connects and pings the server.
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, domain.CacheError("redis ping failed", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisClient{client: client, prefix: prefix}, nil
}

// Get retrieves a value. A missing key is ErrCacheMiss.
func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrCacheMiss
	case err != nil:
		return nil, domain.CacheError("redis get", err)
	}
	return val, nil
}

// Set stores a value. A non-positive ttl keeps it until deleted.
func (c *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return domain.CacheError("redis set", err)
	}
	return nil
}

// Delete removes a value.
func (c *RedisClient) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return domain.CacheError("redis delete", err)
	}
	return nil
}

// Close closes the connection pool.
func (c *RedisClient) Close() error {
	return c.client.Close()
}

// Publish sends an encoded event to a topic.
func (c *RedisClient) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := c.client.Publish(ctx, c.prefix+topic, payload).Err(); err != nil {
		return domain.TransportError("redis publish", err)
	}
	return nil
}

// Subscribe opens a subscription on a topic. The caller closes it.
func (c *RedisClient) Subscribe(ctx context.Context, topic string) *redis.PubSub {
	return c.client.Subscribe(ctx, c.prefix+topic)
}
