package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"printbroker/internal/config"
	"printbroker/internal/domain"
	"printbroker/internal/http/handlers"
	"printbroker/internal/http/middleware"
	"printbroker/internal/infra/logging"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Config       config.Config
	Auth         middleware.Authenticator
	Tokens       middleware.TokenRater
	LimiterStore fiber.Storage
	Ledger       handlers.Ledger
	Shops        handlers.Shops
	Blobs        handlers.Blobs
}

// New creates and configures the Fiber app.
func New(d Deps) *fiber.App {
	bodyLimit := d.Config.Server.BodyLimitMB * 1024 * 1024
	if bodyLimit <= 0 {
		bodyLimit = fiber.DefaultBodyLimit
	}
	app := fiber.New(fiber.Config{
		Prefork:               d.Config.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit,
		ErrorHandler:          errorHandler,
	})

	middleware.Register(app, d.Config)
	registerRoutes(app, d)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})
	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	} else if errors.Is(err, domain.ErrStorage) {
		logging.Error("Storage failure", "path", c.Path(), "request_id", middleware.RequestID(c), "error", err)
	} else {
		logging.Error("Unhandled error", "path", c.Path(), "request_id", middleware.RequestID(c), "error", err)
	}

	if code >= fiber.StatusInternalServerError {
		msg = "Internal Server Error"
	} else {
		logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": msg,
		},
	})
}

func registerRoutes(app *fiber.App, d Deps) {
	api := handlers.NewAPI(d.Ledger, d.Shops, d.Blobs)
	rl := middleware.RateLimitFromConfig(d.Config.RateLimiter)
	store := d.LimiterStore

	v1 := app.Group("/v1")
	v1.Get("/shops", middleware.UserRateLimit(rl, store), api.ListShops)

	authed := v1.Group("", middleware.BearerAuth(d.Auth),
		middleware.TokenRateLimit(rl, d.Tokens, store, middleware.NewLimiterCache()))

	user := middleware.RequireRole(domain.RoleUser)
	authed.Post("/requests", user, api.SubmitRequest)
	authed.Get("/requests", user, api.ListRequests)
	authed.Get("/requests/:id", api.GetRequest)
	authed.Put("/requests/:id", user, api.UpdateRequest)
	authed.Delete("/requests/:id", api.DeleteRequest)
	authed.Get("/requests/:id/artifact", api.DownloadArtifact)

	shop := middleware.RequireRole(domain.RoleShopkeeper)
	authed.Post("/shops/:shopID/pending", shop, api.ListPending)
	authed.Get("/shops/:shopID/pending", shop, api.ListPending)
	authed.Get("/shops/:shopID/accepted", shop, api.ListAccepted)
	authed.Post("/shops/:shopID/requests/:id/:decision", shop, api.Respond)
	authed.Post("/shops/:shopID/mark-printed", shop, api.MarkPrinted)
}
