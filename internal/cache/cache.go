// Package cache provides the short-lived key/value store used for read-through
// caching of gate inputs, news snapshots and contract recommendations.
package cache

import (
	"context"
	"time"

	"spx-engine/internal/errors"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.ErrCacheMiss

// Cache is a key/value store with per-entry TTLs. Values are JSON encoded.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Lookup reads a typed value. The boolean is false on a miss or any backend error.
func Lookup[T any](ctx context.Context, c Cache, key string) (T, bool) {
	var out T
	if c == nil {
		return out, false
	}
	if err := c.Get(ctx, key, &out); err != nil {
		return out, false
	}
	return out, true
}

// Store writes a value and ignores backend failures; caching is best effort.
func Store(ctx context.Context, c Cache, key string, value interface{}, ttl time.Duration) {
	if c == nil {
		return
	}
	_ = c.Set(ctx, key, value, ttl)
}
