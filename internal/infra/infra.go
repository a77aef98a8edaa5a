// Package infra opens the external connections the service depends on.
package infra

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Connections holds whichever of the RPC client, Postgres pool and Redis
// client were configured.
type Connections struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
	Eth   *ethclient.Client
}

// Options selects which connections Connect opens. Empty URLs are skipped.
type Options struct {
	RPCURL      string
	DatabaseURL string
	RedisURL    string
}

// Connect opens every configured connection, closing what it opened on failure.
func Connect(ctx context.Context, opts Options) (*Connections, error) {
	conns := &Connections{}
	var err error

	if opts.RPCURL != "" {
		if conns.Eth, err = NewEthClient(ctx, opts.RPCURL); err != nil {
			return nil, err
		}
	}
	if opts.DatabaseURL != "" {
		if conns.DB, err = NewPostgresPool(ctx, opts.DatabaseURL); err != nil {
			conns.Close(nil)
			return nil, err
		}
	}
	if opts.RedisURL != "" {
		if conns.Cache, err = NewRedisClient(ctx, opts.RedisURL); err != nil {
			conns.Close(nil)
			return nil, err
		}
	}
	return conns, nil
}

// Ping reports "ok" or the error text for every open connection.
func (c *Connections) Ping(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := map[string]string{}
	if c.Eth != nil {
		status["rpc"] = result(func() error { _, err := c.Eth.BlockNumber(ctx); return err })
	}
	if c.DB != nil {
		status["postgres"] = result(func() error { return c.DB.Ping(ctx) })
	}
	if c.Cache != nil {
		status["redis"] = result(func() error { return c.Cache.Ping(ctx).Err() })
	}
	return status
}

// Close releases every open connection.
func (c *Connections) Close(logger *slog.Logger) {
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil && logger != nil {
			logger.Warn("close redis", "error", err)
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
	if c.Eth != nil {
		c.Eth.Close()
	}
}

func result(fn func() error) string {
	if err := fn(); err != nil {
		return err.Error()
	}
	return "ok"
}
