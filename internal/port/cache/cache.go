// Package cache defines the byte-cache port (interface).
package cache

import (
	"context"
	"time"
)

// Cache is a TTL byte cache. Implementations may evict at any time; callers
// must treat every Get as advisory.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
