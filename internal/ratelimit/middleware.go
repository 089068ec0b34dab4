package ratelimit

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/aledlb8/Mango-sub000/internal/auth"
	"github.com/aledlb8/Mango-sub000/internal/httputil"
)

// Middleware returns Fiber middleware enforcing the named rule. Overflowing
// requests receive 429 with a Retry-After header of the whole seconds, rounded
// up, until the window resets.
func (l *Limiter) Middleware(rule string) fiber.Handler {
	return func(c fiber.Ctx) error {
		identity := "ip:" + c.IP()
		if token := auth.RequestToken(c); token != "" {
			identity = "token:" + token
		}

		ok, retryAfter := l.Allow(rule, identity)
		if !ok {
			secs := int64((retryAfter + time.Second - 1) / time.Second)
			if secs < 1 {
				secs = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(secs, 10))
			return httputil.Error(c, fiber.StatusTooManyRequests, "Rate limit exceeded")
		}

		return c.Next()
	}
}
