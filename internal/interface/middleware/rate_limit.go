package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/go-signup-flow/pkg/response"
)

// ipFromCtx extracts the client IP from Gin context, falling back to "unknown"
func ipFromCtx(c *gin.Context) string {
	if ip := c.GetString(RealIPKey); ip != "" {
		return ip
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

func normalizePath(c *gin.Context) string {
	if fp := c.FullPath(); fp != "" {
		return fp
	}
	return c.Request.URL.Path
}

// KeyFunc builds a rate-limit key from the request
type KeyFunc func(c *gin.Context) string

// KeyByIP limits by client IP within a named bucket, so two routes limited
// per IP do not share a counter.
func KeyByIP(bucket string) KeyFunc {
	return func(c *gin.Context) string {
		return "rl:" + bucket + ":ip:" + ipFromCtx(c)
	}
}

// KeyByIPAndPath limits by client IP and matched route path
func KeyByIPAndPath() KeyFunc {
	return func(c *gin.Context) string {
		return "rl:path:" + normalizePath(c) + ":ip:" + ipFromCtx(c)
	}
}

// hitScript counts a hit in the current window and returns {count, pttl}.
// The expiry is set only on the first hit, which makes the window fixed.
var hitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

// AllowFunc returns true for requests that skip the limit.
type AllowFunc func(*gin.Context) bool

type window struct {
	count int
	reset int // seconds until the window closes, rounded up
}

func hit(c *gin.Context, rdb *redis.Client, key string, size time.Duration) (window, error) {
	res, err := hitScript.Run(c.Request.Context(), rdb, []string{key}, size.Milliseconds()).Int64Slice()
	if err != nil {
		return window{}, err
	}
	if len(res) != 2 {
		return window{}, fmt.Errorf("rate limit script returned %d values", len(res))
	}
	w := window{count: int(res[0])}
	if ttl := time.Duration(res[1]) * time.Millisecond; ttl > 0 {
		w.reset = int((ttl + time.Second - 1) / time.Second)
	}
	return w, nil
}

// RateLimit is a fixed-window limiter backed by Redis. It sets the
// X-RateLimit-* headers and fails open when Redis is unavailable.
func RateLimit(rdb *redis.Client, maxHits int, size time.Duration, keyFn KeyFunc, allow AllowFunc) gin.HandlerFunc {
	if rdb == nil || maxHits <= 0 || size <= 0 || keyFn == nil {
		return func(c *gin.Context) { c.Next() }
	}
	limit := strconv.Itoa(maxHits)
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || (allow != nil && allow(c)) {
			c.Next()
			return
		}

		w, err := hit(c, rdb, keyFn(c), size)
		if err != nil {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(0, maxHits-w.count)))
		c.Header("X-RateLimit-Reset", strconv.Itoa(w.reset))

		if w.count > maxHits {
			if w.reset > 0 {
				c.Header("Retry-After", strconv.Itoa(w.reset))
			}
			response.Abort(c, response.Error[any](c, http.StatusTooManyRequests, "rate limit exceeded", "too many requests"))
			return
		}
		c.Next()
	}
}
