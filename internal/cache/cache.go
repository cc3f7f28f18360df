// Package cache provides the key-value store used for OTP sessions,
// attempt counters, identity read-through entries, and session records.
// A distributed primary (Redis) is attempted first; any failure falls
// back silently to a process-local TTL store. Callers never observe
// which tier served a call. The local tier offers no cross-process
// consistency; that is an accepted degradation.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Store is the cache contract. IncrementWithTTL is atomic on both
// tiers and returns the post-increment value; it exists so attempt
// limits can be enforced without a read-modify-write race.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
