package middleware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"

	"printbroker/internal/domain"
	"printbroker/internal/infra/logging"
)

const (
	apiKeyLocal    = "api_key"
	principalLocal = "principal"
)

// Authenticator resolves a bearer token to the calling account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
}

// BearerAuth requires "Authorization: Bearer <token>" and stores the principal for handlers.
func BearerAuth(auth Authenticator) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:" + fiber.HeaderAuthorization,
		AuthScheme: "Bearer",
		ContextKey: apiKeyLocal,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			p, err := auth.Authenticate(c.UserContext(), key)
			if err != nil {
				return false, err
			}
			c.Locals(principalLocal, p)
			return true, nil
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// keyauth may hand over a nil error
			if err == nil {
				err = fiber.ErrUnauthorized
			}
			switch {
			case errors.Is(err, domain.ErrTokenStoreNotReady):
				return writeError(c, fiber.StatusServiceUnavailable, "token store not ready")
			case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, keyauth.ErrMissingOrMalformedAPIKey),
				errors.Is(err, fiber.ErrUnauthorized):
				return writeError(c, fiber.StatusUnauthorized, "invalid or missing bearer token")
			default:
				logging.Error("Authentication failed", "path", c.Path(), "request_id", RequestID(c), "error", err)
				return writeError(c, fiber.StatusInternalServerError, "Internal Server Error")
			}
		},
	})
}

// PrincipalFrom returns the authenticated caller, if any.
func PrincipalFrom(c *fiber.Ctx) (domain.Principal, bool) {
	p, ok := c.Locals(principalLocal).(domain.Principal)
	return p, ok
}

// RequireRole rejects callers without the given role with 403.
func RequireRole(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := PrincipalFrom(c)
		if !ok {
			return writeError(c, fiber.StatusUnauthorized, "invalid or missing bearer token")
		}
		if p.Role != role {
			return writeError(c, fiber.StatusForbidden, "requires role "+string(role))
		}
		return c.Next()
	}
}
