package cache

import (
	"context"
	"sync"
	"time"
)

const (
	defaultMemoryEntries = 10000
	sweepInterval        = time.Minute
)

// MemoryClient is an in-process Client bounded by entry count. Expired
// entries are swept once a minute until Close.
type MemoryClient struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	limit   int
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expiredAt(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryClient creates a cache holding at most limit entries.
func NewMemoryClient(limit int) *MemoryClient {
	if limit <= 0 {
		limit = defaultMemoryEntries
	}
	c := &MemoryClient{
		entries: make(map[string]memoryEntry),
		limit:   limit,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go c.sweep(sweepInterval)
	return c
}

// Get returns a copy of the stored value.
func (c *MemoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || e.expiredAt(c.now()) {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value. A non-positive ttl never expires. When full, a
// new key displaces the entry closest to expiry.
func (c *MemoryClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.limit {
		c.evictLocked()
	}

	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

// Delete removes a value.
func (c *MemoryClient) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryClient) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the sweeper. It is safe to call more than once.
func (c *MemoryClient) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// evictLocked drops the entry expiring soonest; entries without expiry go last.
func (c *MemoryClient) evictLocked() {
	victim, found := "", false
	var soonest time.Time
	for key, e := range c.entries {
		if found && !expiresBefore(e.expiresAt, soonest) {
			continue
		}
		victim, soonest, found = key, e.expiresAt, true
	}
	if found {
		delete(c.entries, victim)
	}
}

func expiresBefore(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	return b.IsZero() || a.Before(b)
}

func (c *MemoryClient) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *MemoryClient) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, e := range c.entries {
		if e.expiredAt(now) {
			delete(c.entries, key)
		}
	}
}
