package api

import (
	"context"
	"errors"
	"time"

	"edge-cdn/internal/logger"
	"edge-cdn/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// ResultCache：解析结果的热点缓存；实现须在后端不可用时按未命中处理
type ResultCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, val string, ttl time.Duration)
}

// RedisCache：基于 go-redis 的 ResultCache；rc 为 nil 时所有操作为空
type RedisCache struct{ rc *redis.Client }

func NewRedisCache(rc *redis.Client) RedisCache { return RedisCache{rc: rc} }

func (c RedisCache) Get(ctx context.Context, key string) (string, bool) {
	if c.rc == nil {
		return "", false
	}
	s, err := c.rc.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.L().Debug("redis_get_error", "key", key, "err", err)
		}
		metrics.RedisMissesTotal.Inc()
		return "", false
	}
	metrics.RedisHitsTotal.Inc()
	return s, true
}

func (c RedisCache) Set(ctx context.Context, key, val string, ttl time.Duration) {
	if c.rc == nil {
		return
	}
	if err := c.rc.Set(ctx, key, val, ttl).Err(); err != nil {
		logger.L().Debug("redis_set_error", "key", key, "err", err)
	}
}
