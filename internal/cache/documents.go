package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/spherical/slide-deck/internal/domain"
	"github.com/spherical/slide-deck/internal/observability"
)

// DefaultDocumentTTL keeps processed documents for a day.
const DefaultDocumentTTL = 24 * time.Hour

// DocumentCache stores documents as JSON keyed by job id. It implements
// domain.DocumentStore.
type DocumentCache struct {
	client Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewDocumentCache wraps a Client.
func NewDocumentCache(client Client, ttl time.Duration, logger *observability.Logger) *DocumentCache {
	if ttl <= 0 {
		ttl = DefaultDocumentTTL
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &DocumentCache{client: client, ttl: ttl, logger: logger.WithComponent("document_cache")}
}

func documentKey(jobID string) string {
	return CacheKey("doc", jobID)
}

// Get returns the cached document. A miss wraps ErrCacheMiss.
func (c *DocumentCache) Get(ctx context.Context, jobID string) (*domain.Document, error) {
	data, err := c.client.Get(ctx, documentKey(jobID))
	if errors.Is(err, ErrCacheMiss) {
		c.logger.Debug().Str("job_id", jobID).Msg("document cache miss")
		return nil, domain.CacheError("document not cached", ErrCacheMiss)
	}
	if err != nil {
		return nil, domain.CacheError("failed to read document", err)
	}

	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, domain.CacheError("cached document is corrupt", err)
	}
	return &doc, nil
}

// Set stores doc under jobID.
func (c *DocumentCache) Set(ctx context.Context, jobID string, doc *domain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return domain.CacheError("failed to encode document", err)
	}
	if err := c.client.Set(ctx, documentKey(jobID), data, c.ttl); err != nil {
		return domain.CacheError("failed to store document", err)
	}
	return nil
}

// Delete drops a cached document.
func (c *DocumentCache) Delete(ctx context.Context, jobID string) error {
	if err := c.client.Delete(ctx, documentKey(jobID)); err != nil {
		return domain.CacheError("failed to delete document", err)
	}
	return nil
}
