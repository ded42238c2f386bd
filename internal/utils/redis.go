// 包 utils：外部依赖连接工具（PostgreSQL / Redis / TLS 证书）
package utils

import (
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"

	"geoname/internal/logger"
)

// OpenRedisFromEnv：从环境变量打开 Redis 客户端
// 约束：未配置 REDIS_HOST 时返回 nil，结果缓存退化为仅进程内；REDIS_DB 解析失败回退到 0
func OpenRedisFromEnv() *redis.Client {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return nil
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	addr := host + ":" + port
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			db = n
		}
	}
	logger.L().Debug("redis_env", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASS"), DB: db})
}
