package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chatcore-backend/internal/database"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
	"chatcore-backend/pkg/response"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	Requests int
	Window   time.Duration
	// Burst sizes the in-process token bucket used while redis is unavailable
	Burst int
}

// RateLimiter counts requests per caller in a redis fixed window. While redis
// is degraded or nil it falls back to an in-process token bucket per caller.
type RateLimiter struct {
	redis   *database.RedisClient
	config  RateLimiterConfig
	metrics *metrics.Metrics

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

// NewRateLimiter creates a new rate limiter. client may be nil.
func NewRateLimiter(client *database.RedisClient, config RateLimiterConfig, m *metrics.Metrics) *RateLimiter {
	if config.Requests <= 0 {
		config.Requests = 120
	}
	if config.Window < time.Second {
		config.Window = time.Minute
	}
	if config.Burst <= 0 {
		config.Burst = config.Requests
	}
	return &RateLimiter{
		redis:   client,
		config:  config,
		metrics: m,
		local:   make(map[string]*rate.Limiter),
	}
}

// Middleware returns a Gin middleware for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if caller, ok := Caller(c); ok {
			identifier = "user:" + caller.ID.String()
		}

		limiter := "redis"
		allowed, remaining, resetAt, err := rl.checkRedis(c.Request.Context(), identifier)
		if err != nil {
			if rl.redis != nil {
				logger.FromContext(c.Request.Context()).Warn("Using in-process rate limiting",
					zap.String("identifier", identifier),
					zap.Error(err))
			}
			limiter = "local"
			allowed = rl.checkLocal(identifier)
			remaining = -1
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Requests))
		if remaining >= 0 {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
		}

		if !allowed {
			rl.metrics.RecordRateLimitBlocked(limiter)
			response.TooManyRequests(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// checkRedis increments the caller's counter of the current window
func (rl *RateLimiter) checkRedis(ctx context.Context, identifier string) (bool, int, int64, error) {
	if rl.redis == nil {
		return false, 0, 0, fmt.Errorf("rate limiter has no redis")
	}
	if rl.redis.IsDegraded() {
		return false, 0, 0, database.ErrDegraded
	}

	window := time.Now().Unix() / int64(rl.config.Window.Seconds())
	key := fmt.Sprintf("ratelimit:%s:%d", identifier, window)

	var incr *redis.IntCmd
	_, err := rl.redis.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, rl.config.Window)
		return nil
	})
	if err != nil {
		return false, 0, 0, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	count := int(incr.Val())
	remaining := rl.config.Requests - count
	if remaining < 0 {
		remaining = 0
	}
	resetAt := (window + 1) * int64(rl.config.Window.Seconds())
	return count <= rl.config.Requests, remaining, resetAt, nil
}

func (rl *RateLimiter) checkLocal(identifier string) bool {
	rl.mu.Lock()
	limiter, ok := rl.local[identifier]
	if !ok {
		every := rl.config.Window / time.Duration(rl.config.Requests)
		limiter = rate.NewLimiter(rate.Every(every), rl.config.Burst)
		rl.local[identifier] = limiter
	}
	rl.mu.Unlock()

	return limiter.Allow()
}
