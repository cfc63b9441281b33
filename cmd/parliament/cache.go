package main

import (
	"context"
	"time"

	"github.com/BaSui01/parliament/agent/persona"
	"github.com/BaSui01/parliament/internal/cache"
)

// cacheObserver 记录缓存命中率，metrics.Collector 实现该接口
type cacheObserver interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// meteredCache 在 persona.Cache 外层统计命中与未命中
type meteredCache struct {
	inner     persona.Cache
	cacheType string
	observer  cacheObserver
}

func newMeteredCache(inner persona.Cache, cacheType string, observer cacheObserver) *meteredCache {
	return &meteredCache{inner: inner, cacheType: cacheType, observer: observer}
}

func (c *meteredCache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.inner.Get(ctx, key)
	switch {
	case err == nil:
		c.observer.RecordCacheHit(c.cacheType)
	case cache.IsCacheMiss(err):
		c.observer.RecordCacheMiss(c.cacheType)
	}
	return v, err
}

func (c *meteredCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.inner.Set(ctx, key, value, ttl)
}
