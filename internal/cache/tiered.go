package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"insights-service/internal/client"
)

// Primary is the distributed tier, satisfied by *client.RedisClient.
type Primary interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	IncrWithExpire(ctx context.Context, key string, expiration time.Duration) (int64, error)
}

// TieredCache routes every call to the primary first and degrades to
// the local store when the primary errors. Fallback is logged at warn,
// never surfaced to callers.
type TieredCache struct {
	primary Primary
	local   *LocalStore
	logger  *zap.Logger
}

// NewTieredCache builds the cache. primary may be nil, in which case
// every call is served locally (the not-yet-connected case).
func NewTieredCache(primary Primary, logger *zap.Logger) *TieredCache {
	return &TieredCache{
		primary: primary,
		local:   NewLocalStore(),
		logger:  logger,
	}
}

func (c *TieredCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if c.primary != nil {
		err := c.primary.Set(ctx, key, value, ttl)
		if err == nil {
			return nil
		}
		c.logger.Warn("primary cache set failed, using local store",
			zap.String("key", key), zap.Error(err))
	}
	return c.local.Set(ctx, key, value, ttl)
}

func (c *TieredCache) Get(ctx context.Context, key string) (string, error) {
	if c.primary != nil {
		value, err := c.primary.Get(ctx, key)
		if err == nil {
			return value, nil
		}
		// An authoritative miss from the primary is a miss, not an
		// outage; only transport failures fall through.
		if errors.Is(err, client.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		c.logger.Warn("primary cache get failed, using local store",
			zap.String("key", key), zap.Error(err))
	}
	return c.local.Get(ctx, key)
}

func (c *TieredCache) Delete(ctx context.Context, key string) error {
	var primaryErr error
	if c.primary != nil {
		if primaryErr = c.primary.Del(ctx, key); primaryErr != nil {
			c.logger.Warn("primary cache delete failed",
				zap.String("key", key), zap.Error(primaryErr))
		}
	}
	// Delete locally regardless so a fallback write cannot resurrect
	// the key.
	return c.local.Delete(ctx, key)
}

func (c *TieredCache) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if c.primary != nil {
		count, err := c.primary.IncrWithExpire(ctx, key, ttl)
		if err == nil {
			return count, nil
		}
		c.logger.Warn("primary cache increment failed, using local store",
			zap.String("key", key), zap.Error(err))
	}
	return c.local.IncrementWithTTL(ctx, key, ttl)
}

func (c *TieredCache) Close() {
	c.local.Close()
}
