// Package cache provides the keyed cache behind previously computed documents.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client is a byte-oriented keyed store with per-entry expiry.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// CacheKey joins key components with ":".
func CacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}
