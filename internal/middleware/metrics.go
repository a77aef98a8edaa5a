package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bytestrike/faucet_bot/internal/metrics"
)

// Metrics records request counts and latency labelled by route pattern, so
// /requests/:address stays a single series.
func Metrics(collector *metrics.Collector) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()
		collector.ObserveHTTP(c.Method(), c.Route().Path, statusOf(c, err), time.Since(start))
		return err
	}
}
