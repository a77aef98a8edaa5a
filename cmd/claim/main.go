// Command claim runs one faucet claim into the master wallet and prints the
// resulting record. It exits non-zero when the claim fails.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bytestrike/faucet_bot/internal/bootstrap"
	"github.com/bytestrike/faucet_bot/internal/config"
	"github.com/bytestrike/faucet_bot/internal/infra"
	"github.com/bytestrike/faucet_bot/internal/logging"
	"github.com/bytestrike/faucet_bot/internal/notification"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	logger := logging.New(cfg.LogLevel, cfg.AppName)

	if cfg.ClaimSource == config.ClaimSourceDisabled {
		logger.Error("CLAIM_SOURCE is disabled, nothing to run")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := infra.Options{}
	switch cfg.LedgerBackend {
	case config.LedgerPostgres:
		opts.DatabaseURL = cfg.DatabaseURL
	case config.LedgerRedis:
		opts.RedisURL = cfg.RedisURL
	}
	conns, err := infra.Connect(ctx, opts)
	if err != nil {
		logger.Error("connect dependencies", "error", err)
		return 1
	}
	defer conns.Close(logger)

	store, err := bootstrap.OpenLedger(ctx, cfg, conns)
	if err != nil {
		logger.Error("open ledger", "backend", cfg.LedgerBackend, "error", err)
		return 1
	}

	notifier := notification.NewLoggerNotifier(logger)
	source, err := bootstrap.NewClaimSource(cfg, store, nil, notifier, logging.Component(logger, "claim"))
	if err != nil {
		logger.Error("build claim source", "error", err)
		return 1
	}

	record := source.Attempt(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(record); err != nil {
		logger.Error("encode claim record", "error", err)
		return 1
	}
	if !record.Success {
		return 1
	}
	return 0
}
