// Package store provides the shared, TTL-capable key-value store behind
// sessions, rate-limit counters and the geocode cache.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: key not found")

// KV is the minimal key-value contract every backend satisfies. A ttl of
// zero or less stores the value without expiry.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Backend() string
}

// Sweeper is implemented by backends that need expired rows purged.
type Sweeper interface {
	PurgeExpired(ctx context.Context) (int64, error)
}
