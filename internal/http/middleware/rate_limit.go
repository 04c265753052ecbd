package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"printbroker/internal/config"
	"printbroker/internal/infra/logging"
)

// RateLimitConfig controls the per-token and per-client limiters.
type RateLimitConfig struct {
	RateInterval           time.Duration
	EnableUserLimiter      bool
	UserLimit              int
	EnableTokenRateLimiter bool
}

// RateLimitFromConfig maps the file configuration onto RateLimitConfig.
func RateLimitFromConfig(cfg config.RateLimiterConfig) RateLimitConfig {
	return RateLimitConfig{
		RateInterval:           cfg.Interval,
		EnableUserLimiter:      cfg.EnableUserLimiter,
		UserLimit:              cfg.UserLimit,
		EnableTokenRateLimiter: cfg.EnableTokenRateLimiter,
	}
}

// TokenRater returns the request budget per interval for a raw token; 0 means unlimited.
type TokenRater interface {
	RateLimit(token string) int
}

// LimiterCache holds one limiter per distinct token limit.
type LimiterCache struct {
	mu       sync.RWMutex
	handlers map[int]fiber.Handler
}

func NewLimiterCache() *LimiterCache {
	return &LimiterCache{handlers: make(map[int]fiber.Handler)}
}

func (lc *LimiterCache) get(limit int, build func() fiber.Handler) fiber.Handler {
	lc.mu.RLock()
	h, ok := lc.handlers[limit]
	lc.mu.RUnlock()
	if ok {
		return h
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()
	if h, ok := lc.handlers[limit]; ok {
		return h
	}
	h = build()
	lc.handlers[limit] = h
	return h
}

func hashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func tooManyRequests(c *fiber.Ctx) error {
	return writeError(c, fiber.StatusTooManyRequests, "Too many requests")
}

// TokenRateLimit applies the per-token limit of authenticated requests. It runs after BearerAuth.
func TokenRateLimit(cfg RateLimitConfig, rater TokenRater, store fiber.Storage, cache *LimiterCache) fiber.Handler {
	if !cfg.EnableTokenRateLimiter {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	build := func(limit int) func() fiber.Handler {
		return func() fiber.Handler {
			return limiter.New(limiter.Config{
				Max:               limit,
				Expiration:        cfg.RateInterval,
				LimiterMiddleware: limiter.SlidingWindow{},
				Storage:           store,
				KeyGenerator: func(c *fiber.Ctx) string {
					token, _ := c.Locals(apiKeyLocal).(string)
					return "tok:" + hashKey(token)
				},
				LimitReached: func(c *fiber.Ctx) error {
					logging.Warn("Rate limit exceeded", "scope", "token", "path", c.Path(), "request_id", RequestID(c))
					return tooManyRequests(c)
				},
			})
		}
	}
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals(apiKeyLocal).(string)
		if !ok || token == "" {
			return c.Next()
		}
		limit := rater.RateLimit(token)
		if limit <= 0 {
			return c.Next()
		}
		return cache.get(limit, build(limit))(c)
	}
}

// UserRateLimit limits anonymous clients by IP and User-Agent. Requests carrying a token skip it.
func UserRateLimit(cfg RateLimitConfig, store fiber.Storage) fiber.Handler {
	if !cfg.EnableUserLimiter || cfg.UserLimit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	userLimiter := limiter.New(limiter.Config{
		Max:               cfg.UserLimit,
		Expiration:        cfg.RateInterval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           store,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "usr:" + hashKey(c.IP(), c.Get(fiber.HeaderUserAgent))
		},
		LimitReached: func(c *fiber.Ctx) error {
			logging.Warn("Rate limit exceeded", "scope", "client", "path", c.Path(), "request_id", RequestID(c))
			return tooManyRequests(c)
		},
	})
	return func(c *fiber.Ctx) error {
		if token, ok := c.Locals(apiKeyLocal).(string); ok && token != "" {
			return c.Next()
		}
		return userLimiter(c)
	}
}
