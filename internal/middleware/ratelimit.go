package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/lite/internal/types"
	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

type client struct {
	limiter *rate.Limiter
	seen    time.Time
}

// UploadLimiter allows perMinute requests per client IP, with bursts of the same size.
// Zero or less disables the limit.
func UploadLimiter(perMinute int) fiber.Handler {
	if perMinute <= 0 {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	var (
		mu      sync.Mutex
		clients = make(map[string]*client)
		swept   = time.Now()
	)
	every := rate.Every(time.Minute / time.Duration(perMinute))

	return func(c *fiber.Ctx) error {
		now := time.Now()
		ip := c.IP()

		mu.Lock()
		if now.Sub(swept) > limiterIdle {
			for key, cl := range clients {
				if now.Sub(cl.seen) > limiterIdle {
					delete(clients, key)
				}
			}
			swept = now
		}
		cl, ok := clients[ip]
		if !ok {
			cl = &client{limiter: rate.NewLimiter(every, perMinute)}
			clients[ip] = cl
		}
		cl.seen = now
		allowed := cl.limiter.AllowN(now, 1)
		mu.Unlock()

		if !allowed {
			c.Set(fiber.HeaderRetryAfter, "60")
			return &types.CustomError{
				Code:    fiber.StatusTooManyRequests,
				Message: "Upload rate limit exceeded, retry later",
				Type:    "rateLimit",
			}
		}
		return c.Next()
	}
}
