package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const checkoutKeyPrefix = "ratelimit:checkout:"

// CheckoutRateLimit allows limit payment attempts per client IP per window,
// counted in Redis so the limit holds across instances. Redis errors let the
// request through.
func CheckoutRateLimit(client *redis.Client, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if client == nil || limit <= 0 {
			c.Next()
			return
		}
		ip := getClientIP(c)
		key := checkoutKeyPrefix + ip
		ctx := c.Request.Context()

		count, err := client.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("Checkout rate limiter unavailable", zap.String("ip", ip), zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			if err := client.Expire(ctx, key, window).Err(); err != nil {
				logger.Warn("Failed to set checkout limit expiry", zap.String("ip", ip), zap.Error(err))
			}
		}
		if count > int64(limit) {
			ttl, _ := client.TTL(ctx, key).Result()
			if ttl > 0 {
				c.Header("Retry-After", strconv.Itoa(int(ttl.Round(time.Second).Seconds())))
			}
			logger.Warn("Checkout rate limit exceeded", zap.String("ip", ip), zap.Int64("attempts", count))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message": "Too many payment attempts. Please try again later.",
			})
			return
		}
		c.Next()
	}
}
