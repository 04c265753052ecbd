package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/xid"

	"printbroker/internal/config"
	"printbroker/internal/infra/logging"
)

// Register attaches the global middleware shared by every route.
func Register(app *fiber.App, cfg config.Config) {
	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  "/ops/health",
		ReadinessEndpoint: "/ops/ready",
	}))

	app.Use(func(c *fiber.Ctx) error {
		logging.Debug("Incoming request", "method", c.Method(), "path", c.Path(), "request_id", RequestID(c))
		return c.Next()
	})
}

// RequestID returns the id assigned by the requestid middleware.
func RequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok && id != "" {
		return id
	}
	if id := c.GetRespHeader(fiber.HeaderXRequestID); id != "" {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}

func writeError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    status,
			"message": msg,
		},
	})
}
