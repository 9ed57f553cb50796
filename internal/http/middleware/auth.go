package middleware

import (
	"github.com/gofiber/fiber/v2"

	"offerapi/internal/apperr"
	"offerapi/internal/auth"
)

const (
	// UserIDLocalKey is the key under which the authenticated user's ID is
	// stored in Fiber's context locals.
	UserIDLocalKey = "user_id"
	// UsernameLocalKey holds the authenticated user's display name.
	UsernameLocalKey = "username"
)

// Auth enforces bearer-token authentication on the routes it guards.
// A missing or unknown token short-circuits with an unauthorized error,
// rendered by the app's error handler in the standardized payload; on
// success the resolved user ID is stored in context locals for handlers.
func Auth(tokens *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return apperr.Unauthorized("authorization token required")
		}

		user, ok := tokens.ValidateToken(header)
		if !ok {
			return apperr.Unauthorized("invalid or expired token")
		}

		c.Locals(UserIDLocalKey, user.ID)
		c.Locals(UsernameLocalKey, user.Username)
		return c.Next()
	}
}

// UserID extracts the authenticated user's ID set by Auth; empty when the
// request did not pass through the middleware.
func UserID(c *fiber.Ctx) string {
	if v, ok := c.Locals(UserIDLocalKey).(string); ok {
		return v
	}
	return ""
}
