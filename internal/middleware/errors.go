package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders every handler error as {"error": message}. Errors that
// are not *fiber.Error become 500s.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return c.Status(statusOf(c, err)).JSON(fiber.Map{"error": err.Error()})
}

// statusOf is the status the client will see once err reaches ErrorHandler.
func statusOf(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}
