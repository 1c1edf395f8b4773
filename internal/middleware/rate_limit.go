package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/icrc_ledger/internal/account"
)

// CallerRateLimit limits mutating requests per caller per minute using Redis
// if available. Anonymous callers are keyed by IP.
func CallerRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 600
	}
	return func(c *fiber.Ctx) error {
		if cache == nil || c.Method() == fiber.MethodGet {
			return c.Next() // no-op without Redis
		}
		caller := Caller(c)
		id := caller.String()
		if caller == account.Anonymous {
			id = "ip:" + c.IP()
		}
		key := "rl:caller:" + id
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err == nil && cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
