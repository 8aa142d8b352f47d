package cache

import (
	"context"
	"time"

	"github.com/pulsefeed/pulse/internal/domain"
)

// ListingCache holds rendered post listings for a short TTL so hot pages
// do not hit the database on every request.
type ListingCache interface {
	Get(ctx context.Context, key string) (*domain.PostListResponse, error)
	Set(ctx context.Context, key string, result *domain.PostListResponse, ttl time.Duration) error
	// Invalidate drops every cached listing under this cache's prefix.
	Invalidate(ctx context.Context) error
	BuildKey(scope string, page, perPage int) string
	Close() error
}
