package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware returns a Fiber handler that validates the bearer token
// on the Authorization header.
// If the token is missing or invalid, it returns 401 Unauthorized.
// If valid, it calls the next handler.
func AuthMiddleware(validToken string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token != validToken {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		return c.Next()
	}
}
