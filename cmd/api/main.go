package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bytestrike/faucet_bot/internal/auth"
	"github.com/bytestrike/faucet_bot/internal/bootstrap"
	"github.com/bytestrike/faucet_bot/internal/config"
	"github.com/bytestrike/faucet_bot/internal/disbursement"
	"github.com/bytestrike/faucet_bot/internal/infra"
	"github.com/bytestrike/faucet_bot/internal/logging"
	"github.com/bytestrike/faucet_bot/internal/metrics"
	"github.com/bytestrike/faucet_bot/internal/notification"
	"github.com/bytestrike/faucet_bot/internal/ratelimit"
	"github.com/bytestrike/faucet_bot/internal/routes"
	"github.com/bytestrike/faucet_bot/internal/scheduler"
	"github.com/bytestrike/faucet_bot/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conns, err := infra.Connect(ctx, infra.Options{
		RPCURL:      cfg.RPCURL,
		DatabaseURL: cfg.DatabaseURL,
		RedisURL:    cfg.RedisURL,
	})
	if err != nil {
		logger.Error("connect dependencies", "error", err)
		os.Exit(1)
	}
	defer conns.Close(logger)

	store, err := bootstrap.OpenLedger(ctx, cfg, conns)
	if err != nil {
		logger.Error("open ledger", "backend", cfg.LedgerBackend, "error", err)
		os.Exit(1)
	}

	gateway, err := bootstrap.NewGateway(cfg, conns.Eth, logging.Component(logger, "chain"))
	if err != nil {
		logger.Error("build chain gateway", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector("")
	notifier := notification.NewLoggerNotifier(logging.Component(logger, "notification"))

	limiter := ratelimit.New(store.RateLimits, ratelimit.Limits{
		MaxPerWallet: cfg.MaxRequestsPerWallet,
		MaxPerIP:     cfg.MaxRequestsPerIP,
	}, nil)

	disbursements, err := disbursement.NewService(disbursement.Deps{
		Store:    store,
		Limiter:  limiter,
		Gateway:  gateway,
		Locker:   bootstrap.NewLocker(cfg, conns),
		Notifier: notifier,
		Metrics:  collector,
		Logger:   logging.Component(logger, "disbursement"),
	})
	if err != nil {
		logger.Error("build disbursement service", "error", err)
		os.Exit(1)
	}

	admin, err := auth.NewService(cfg.AdminTokenHash)
	if err != nil {
		logger.Error("build admin auth", "error", err)
		os.Exit(1)
	}
	if !admin.Enabled() {
		logger.Warn("ADMIN_TOKEN_HASH not set, /requests and /claims are public")
	}

	source, err := bootstrap.NewClaimSource(cfg, store, collector, notifier, logging.Component(logger, "claim"))
	if err != nil {
		logger.Error("build claim source", "error", err)
		os.Exit(1)
	}
	var sched *scheduler.Scheduler
	if source != nil {
		sched, err = scheduler.New(source, store, scheduler.Config{
			Interval:     cfg.ClaimInterval,
			StartupDelay: cfg.ClaimStartupDelay,
		}, nil, logging.Component(logger, "scheduler"))
		if err != nil {
			logger.Error("build scheduler", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("faucet claiming disabled")
	}

	srv, err := server.New(routes.Deps{
		Cfg:          cfg,
		Cache:        conns.Cache,
		Pinger:       conns,
		Logger:       logger,
		Gateway:      gateway,
		Disbursement: disbursements,
		Store:        store,
		Admin:        admin,
		Metrics:      collector,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	if status, err := gateway.Status(ctx); err != nil {
		logger.Warn("read master status", "error", err)
	} else {
		logger.Info("faucet ready",
			"master_wallet", status.MasterWallet.Hex(),
			"balance_wei", status.Balance.String(),
			"max_distributions", status.MaxDistributions.String(),
			"ledger", cfg.LedgerBackend,
			"port", cfg.Port)
	}

	if sched != nil {
		if err := sched.Start(ctx); err != nil {
			logger.Error("start scheduler", "error", err)
			os.Exit(1)
		}
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			exitCode = 1
		}
	}

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		exitCode = 1
	}

	if exitCode != 0 {
		conns.Close(logger)
		os.Exit(exitCode)
	}
	logger.Info("server exited cleanly")
}
