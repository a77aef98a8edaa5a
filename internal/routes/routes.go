package routes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/bytestrike/faucet_bot/internal/auth"
	"github.com/bytestrike/faucet_bot/internal/chain"
	"github.com/bytestrike/faucet_bot/internal/config"
	"github.com/bytestrike/faucet_bot/internal/disbursement"
	"github.com/bytestrike/faucet_bot/internal/ledger"
	"github.com/bytestrike/faucet_bot/internal/metrics"
	"github.com/bytestrike/faucet_bot/internal/middleware"
)

// Pinger reports the state of external dependencies for /healthz.
type Pinger interface {
	Ping(ctx context.Context) map[string]string
}

// Deps aggregates shared dependencies required to wire routes. Cache, Pinger
// and Metrics are optional.
type Deps struct {
	Cfg          config.Config
	Cache        *redis.Client
	Pinger       Pinger
	Logger       *slog.Logger
	Gateway      *chain.Gateway
	Disbursement *disbursement.Service
	Store        *ledger.Store
	Admin        *auth.Service
	Metrics      *metrics.Collector
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Gateway == nil || d.Disbursement == nil || d.Store == nil {
		return fmt.Errorf("gateway, disbursement service and store are required")
	}
	if d.Admin == nil {
		d.Admin, _ = auth.NewService("")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(cors.New())
	// Plain text access log: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Metrics != nil {
		app.Use(middleware.Metrics(d.Metrics))
	}
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	handler := disbursement.NewHandler(d.Disbursement)
	app.Post("/request", middleware.BurstGuard(d.Cache, d.Cfg.RequestBurstPerMinute, d.Logger), handler.Request)
	app.Get("/requests/:address", handler.Get)

	admin := middleware.AdminAuth(d.Admin)
	app.Get("/requests", admin, handler.List)
	app.Get("/claims", admin, claimHistory(d.Store))

	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))
	}
	return nil
}

func claimHistory(store *ledger.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := store.ClaimHistory(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(claims)
	}
}
