package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/kudipay/kudipay/internal/apikey"
)

const apiKeyHeader = "X-API-Key"

// APIKeyAuth authenticates requests carrying an API key with the required
// permission. Requests without the header fall through to the next handler,
// so it can sit in front of JWTAuth as an alternative credential.
func APIKeyAuth(keys *apikey.Service, required apikey.Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := c.Get(apiKeyHeader)
		if secret == "" {
			return c.Next()
		}

		ownerID, err := keys.Authorize(c.UserContext(), secret, required)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid api key")
		}

		c.Locals("user_id", ownerID)
		c.Locals("auth_method", "api_key")
		return c.Next()
	}
}
