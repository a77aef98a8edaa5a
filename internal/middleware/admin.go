package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/bytestrike/faucet_bot/internal/auth"
)

// AdminAuth requires a bearer token accepted by verifier on operator routes.
func AdminAuth(verifier *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !verifier.Enabled() {
			return c.Next()
		}
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, auth.ErrMissingToken.Error())
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		if err := verifier.Verify(token); err != nil {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		c.Locals("admin", true)
		return c.Next()
	}
}
