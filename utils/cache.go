package utils

import (
	"context"
	"fmt"
	"time"

	"coursebook/config"

	"github.com/go-redis/redis/v8"
)

// CacheClient backs the checkout rate limiter.
var CacheClient *redis.Client

// InitCache connects the Redis cache client using REDIS_CACHE_DB.
func InitCache(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisCacheDB,
	})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis (cache): %w", err)
	}
	CacheClient = client
	return client, nil
}
