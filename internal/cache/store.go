package cache

import (
	"context"
	"time"
)

// Store is the TTL key-value space the query core reads and writes.
// Implemented by memory store (dev) and Redis store (prod). TTL
// enforcement is the store's job; callers never see expired entries.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
