package ratelimit

import (
	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"

	"printbroker/internal/config"
	"printbroker/internal/infra/logging"
)

// NewStore returns the limiter storage. Redis is used when an address is
// configured and reachable; otherwise counters live in process memory.
func NewStore(cfg config.RedisConfig) (store fiber.Storage) {
	store = memoryStorage.New()
	if cfg.Addr == "" {
		logging.Info("Using in-memory rate limit store")
		return store
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Error("Redis limiter store init panicked, falling back to memory", "panic", r)
		}
	}()
	store = redisStorage.New(redisStorage.Config{
		Addrs:    []string{cfg.Addr},
		Password: cfg.Password,
		Database: cfg.RateLimitDB,
	})
	logging.Info("Using Redis for rate limiting", "addr", cfg.Addr, "db", cfg.RateLimitDB)
	return store
}
