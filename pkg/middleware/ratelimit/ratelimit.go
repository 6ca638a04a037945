package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

// Counter is the subset of the Redis client used for fixed-window counting.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// Middleware allows at most limit requests per client IP and route within
// window. A nil counter or non-positive limit disables it. Redis failures let
// the request through and are recorded on the context.
func Middleware(counter Counter, limit int, window time.Duration) gin.HandlerFunc {
	if counter == nil || limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := fmt.Sprintf("rate_limit:%s:%s", route, c.ClientIP())

		ctx := c.Request.Context()
		count, err := counter.Incr(ctx, key).Result()
		if err != nil {
			_ = c.Error(fmt.Errorf("rate limit incr: %w", err))
			c.Next()
			return
		}
		if count == 1 {
			if err := counter.Expire(ctx, key, window).Err(); err != nil {
				_ = c.Error(fmt.Errorf("rate limit expire: %w", err))
			}
		} else if count > int64(limit) {
			ensureExpiry(c, counter, key, window)
		}

		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(limit) {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			response.Error(c, appErrors.ErrRateLimited)
			c.Abort()
			return
		}

		c.Next()
	}
}

// ensureExpiry re-arms the window on a key that lost its TTL, e.g. when the
// Expire after the first hit failed. Without it the client stays blocked.
func ensureExpiry(c *gin.Context, counter Counter, key string, window time.Duration) {
	ctx := c.Request.Context()
	ttl, err := counter.TTL(ctx, key).Result()
	if err != nil {
		_ = c.Error(fmt.Errorf("rate limit ttl: %w", err))
		return
	}
	if ttl >= 0 {
		return
	}
	if err := counter.Expire(ctx, key, window).Err(); err != nil {
		_ = c.Error(fmt.Errorf("rate limit expire: %w", err))
	}
}
