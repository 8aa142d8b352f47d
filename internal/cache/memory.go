package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pulsefeed/pulse/internal/domain"
)

type memoryEntry struct {
	value     *domain.PostListResponse
	expiresAt time.Time
}

// MemoryListingCache is an in-process cache used in tests and single-node
// development setups.
type MemoryListingCache struct {
	mu      sync.RWMutex
	prefix  string
	entries map[string]memoryEntry
}

func NewMemoryListingCache(prefix string) *MemoryListingCache {
	return &MemoryListingCache{
		prefix:  prefix,
		entries: make(map[string]memoryEntry),
	}
}

func (c *MemoryListingCache) BuildKey(scope string, page, perPage int) string {
	return fmt.Sprintf("%s:%s:%d:%d", c.prefix, scope, page, perPage)
}

func (c *MemoryListingCache) Get(_ context.Context, key string) (*domain.PostListResponse, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

func (c *MemoryListingCache) Set(_ context.Context, key string, result *domain.PostListResponse, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[key] = memoryEntry{value: result, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryListingCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}

func (c *MemoryListingCache) Close() error { return nil }

var _ ListingCache = (*MemoryListingCache)(nil)
