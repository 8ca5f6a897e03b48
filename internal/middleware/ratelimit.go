package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/fitgate/internal/config"
)

// windowScript bumps the counter and stamps the window TTL in one atomic
// round trip, so a counter can never be left behind without an expiry. It
// also repairs a missing TTL on an already-open window.
var windowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RateLimit returns a middleware applying a fixed-window counter in Redis,
// keyed by the policy's route key and the client address. When the window
// is exhausted the request is rejected with 429 and a Retry-After header.
// A nil client or a Redis failure fails open: sensitive routes degrade to
// unlimited rather than unavailable.
func RateLimit(rdb *redis.Client, pol config.RatePolicy, log *slog.Logger) echo.MiddlewareFunc {
	if rdb == nil || !pol.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "rl:" + pol.Key + ":" + clientIP(c)
			ctx := c.Request().Context()

			n, err := windowScript.Run(ctx, rdb, []string{key}, pol.Period.Milliseconds()).Int64()
			if err != nil {
				log.Warn("rate limiter unavailable", "key", key, "err", err)
				return next(c)
			}
			remaining := int64(pol.Limit) - n
			if remaining < 0 {
				remaining = 0
			}
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(pol.Limit))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if n > int64(pol.Limit) {
				retryAfter := pol.Period
				if ttl, err := rdb.TTL(ctx, key).Result(); err == nil && ttl > 0 {
					retryAfter = ttl
				}
				secs := int(retryAfter / time.Second)
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too many requests, please try again later"})
			}
			return next(c)
		}
	}
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// direct peer address.
func clientIP(c echo.Context) string {
	if xff := c.Request().Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	return c.RealIP()
}
