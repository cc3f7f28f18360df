package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"insights-service/internal/client"
)

var errPrimaryDown = errors.New("connection refused")

// flakyPrimary serves from an in-memory map until failing is flipped,
// after which every call errors like a dead Redis.
type flakyPrimary struct {
	failing bool
	values  map[string]string
	counts  map[string]int64
}

func newFlakyPrimary() *flakyPrimary {
	return &flakyPrimary{
		values: make(map[string]string),
		counts: make(map[string]int64),
	}
}

func (p *flakyPrimary) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if p.failing {
		return errPrimaryDown
	}
	p.values[key] = value.(string)
	return nil
}

func (p *flakyPrimary) Get(_ context.Context, key string) (string, error) {
	if p.failing {
		return "", errPrimaryDown
	}
	value, ok := p.values[key]
	if !ok {
		return "", client.ErrKeyNotFound
	}
	return value, nil
}

func (p *flakyPrimary) Del(_ context.Context, keys ...string) error {
	if p.failing {
		return errPrimaryDown
	}
	for _, key := range keys {
		delete(p.values, key)
		delete(p.counts, key)
	}
	return nil
}

func (p *flakyPrimary) IncrWithExpire(_ context.Context, key string, _ time.Duration) (int64, error) {
	if p.failing {
		return 0, errPrimaryDown
	}
	p.counts[key]++
	return p.counts[key], nil
}

func newTestTiered(primary Primary) *TieredCache {
	return NewTieredCache(primary, zap.NewNop())
}

func TestTieredCachePrefersPrimary(t *testing.T) {
	primary := newFlakyPrimary()
	cache := newTestTiered(primary)
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v", time.Minute))
	assert.Equal(t, "v", primary.values["k"])

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestTieredCacheFallsBackWhenPrimaryFails(t *testing.T) {
	primary := newFlakyPrimary()
	primary.failing = true
	cache := newTestTiered(primary)
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v", time.Minute))

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestTieredCachePrimaryMissIsAuthoritative(t *testing.T) {
	primary := newFlakyPrimary()
	cache := newTestTiered(primary)
	defer cache.Close()
	ctx := context.Background()

	// Seed only the local tier, as if a fallback write happened during
	// an outage that has since recovered.
	require.NoError(t, cache.local.Set(ctx, "k", "stale", time.Minute))

	_, err := cache.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTieredCacheDeleteClearsBothTiers(t *testing.T) {
	primary := newFlakyPrimary()
	cache := newTestTiered(primary)
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, cache.local.Set(ctx, "k", "v", time.Minute))

	require.NoError(t, cache.Delete(ctx, "k"))

	_, err := cache.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = cache.local.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTieredCacheIncrementFallsBack(t *testing.T) {
	primary := newFlakyPrimary()
	cache := newTestTiered(primary)
	defer cache.Close()
	ctx := context.Background()

	count, err := cache.IncrementWithTTL(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	primary.failing = true

	// The local tier starts its own count; the contract is monotonic
	// counting per tier, not cross-tier continuity.
	count, err = cache.IncrementWithTTL(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = cache.IncrementWithTTL(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestTieredCacheNilPrimaryServesLocally(t *testing.T) {
	cache := newTestTiered(nil)
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v", time.Minute))
	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}
