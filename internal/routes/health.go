package routes

import (
	"math/big"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bytestrike/faucet_bot/internal/chain"
)

// RegisterHealthRoutes adds the balance-aware health and status endpoints and
// the dependency readiness probe.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		balance, err := d.Gateway.MasterBalance(c.UserContext())
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		d.Metrics.SetMasterBalance(weiFloat(balance))
		return c.JSON(fiber.Map{
			"status":       "ok",
			"masterWallet": d.Gateway.MasterAddress().Hex(),
			"balance":      balance.String(),
		})
	})

	app.Get("/status", func(c *fiber.Ctx) error {
		report, err := d.Gateway.Status(c.UserContext())
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		d.Metrics.SetMasterBalance(weiFloat(report.Balance))
		return c.JSON(fiber.Map{
			"masterWallet":       report.MasterWallet.Hex(),
			"balance":            report.Balance.String(),
			"gasPrice":           report.GasPrice.String(),
			"distributionAmount": chain.FormatEther(report.DistributionAmount),
			"minBalance":         chain.FormatEther(report.MinMasterBalance),
			"threshold":          chain.FormatEther(report.Threshold),
			"maxDistributions":   report.MaxDistributions.String(),
		})
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		deps := map[string]string{}
		if d.Pinger != nil {
			deps = d.Pinger.Ping(c.UserContext())
		}
		status := http.StatusOK
		for _, s := range deps {
			if s != "ok" {
				status = http.StatusServiceUnavailable
			}
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    deps,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

func weiFloat(wei *big.Int) float64 {
	f, _ := new(big.Float).SetInt(wei).Float64()
	return f
}
