package caching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

type Cache interface {
	Get(ctx context.Context, key string, target any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// UseCache reads key through the cache, falling back to callback on a miss.
// Cache failures other than a miss are ignored and the callback result is served.
func UseCache[T any](ctx context.Context,
	c Cache, key string, ttl time.Duration, callback func() (T, error),
) (T, error) {
	var v T
	err := c.Get(ctx, key, &v)
	if err == nil {
		return v, nil
	}

	v, err = callback()
	if err != nil {
		return v, err
	}

	//nolint:errcheck // fire and forget
	c.Set(ctx, key, v, ttl)
	return v, nil
}

type RedisCache struct {
	instance *cache.Cache
}

func NewRedisCache(client redis.UniversalClient, withLocalCache bool) *RedisCache {
	var localCache cache.LocalCache
	if withLocalCache {
		const localSize = 10000
		localCache = cache.NewTinyLFU(localSize, time.Minute)
	}
	return &RedisCache{cache.New(&cache.Options{
		Redis:      client,
		LocalCache: localCache,
	})}
}

func (c *RedisCache) Get(ctx context.Context, key string, target any) error {
	if err := c.instance.Get(ctx, key, target); err != nil {
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.instance.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: value,
		TTL:   ttl,
	}); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.instance.Delete(ctx, key); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// Noop never stores anything; every read is a miss.
type Noop struct{}

func (Noop) Get(context.Context, string, any) error {
	return cache.ErrCacheMiss
}

func (Noop) Set(context.Context, string, any, time.Duration) error {
	return nil
}

func (Noop) Delete(context.Context, string) error {
	return nil
}
