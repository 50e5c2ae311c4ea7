package handler

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

const apiKeyHeader = "X-API-Key"

// APIKeyMiddleware guards the v1 surface with a single shared key.
func APIKeyMiddleware(apiKey string) fiber.Handler {
	expected := []byte(apiKey)
	return func(c *fiber.Ctx) error {
		provided := []byte(c.Get(apiKeyHeader))
		if subtle.ConstantTimeCompare(provided, expected) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or missing api key")
		}
		return c.Next()
	}
}
