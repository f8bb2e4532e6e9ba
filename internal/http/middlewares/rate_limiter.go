package middlewares

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a fixed window per derived key, counted in
// redis so every API replica shares the same budget.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	scope  string
}

func NewRateLimiter(rdb *redis.Client, scope string, limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &RateLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		scope:  scope,
	}
}

// Middleware returns a gin.HandlerFunc that enforces the limit for a
// derived key. When redis is unreachable the request is allowed
// through; throttling is protection, not a dependency.
func (rl *RateLimiter) Middleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		if key == "" {
			// fallback to IP if key cannot be derived
			key = clientIP(c)
		}

		windowStart := time.Now().Unix() / int64(rl.window.Seconds())
		redisKey := "ratelimit:" + rl.scope + ":" + key + ":" + strconv.FormatInt(windowStart, 10)

		ctx := c.Request.Context()

		count, err := rl.rdb.Incr(ctx, redisKey).Result()

		if err != nil {
			c.Next()
			return
		}

		if count == 1 {
			rl.rdb.Expire(ctx, redisKey, rl.window)
		}

		if count > int64(rl.limit) {
			ttl, err := rl.rdb.TTL(ctx, redisKey).Result()

			retryAfter := int(rl.window.Seconds())

			if err == nil && ttl > 0 {
				retryAfter = int(ttl.Seconds())
			}

			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "rate_limited",
					"message": "Too many requests. Try again later.",
				},
			})
			return
		}

		c.Next()
	}
}

// ByClientIP is the default key function for unauthenticated routes.
func ByClientIP() func(*gin.Context) string {
	return clientIP
}

func clientIP(c *gin.Context) string {
	// behind a proxy, take the first hop of X-Forwarded-For
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)

	if err != nil {
		return c.Request.RemoteAddr
	}

	return host
}
