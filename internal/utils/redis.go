package utils

import (
	"edge-cdn/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis：按地址打开 Redis 客户端，密码与库号取自 REDIS_PASS/REDIS_DB
// 约束：addr 为空返回 nil，调用方按“无缓存”处理；REDIS_DB 解析失败回退 0
func OpenRedis(addr string) *redis.Client {
	if addr == "" {
		return nil
	}
	db := envInt("REDIS_DB", 0)
	logger.L().Debug("redis_open", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: envOr("REDIS_PASS", ""), DB: db})
}
