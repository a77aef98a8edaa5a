// Package bootstrap builds the faucet components from configuration for the
// command binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bytestrike/faucet_bot/internal/chain"
	"github.com/bytestrike/faucet_bot/internal/claim"
	"github.com/bytestrike/faucet_bot/internal/config"
	"github.com/bytestrike/faucet_bot/internal/infra"
	"github.com/bytestrike/faucet_bot/internal/ledger"
	"github.com/bytestrike/faucet_bot/internal/lock"
	"github.com/bytestrike/faucet_bot/internal/metrics"
	"github.com/bytestrike/faucet_bot/internal/notification"
)

// OpenLedger selects the ledger backend named by cfg.LedgerBackend.
func OpenLedger(ctx context.Context, cfg config.Config, conns *infra.Connections) (*ledger.Store, error) {
	switch cfg.LedgerBackend {
	case config.LedgerFile:
		backend, err := ledger.NewFileBackend(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return ledger.NewStore(backend), nil
	case config.LedgerPostgres:
		if conns.DB == nil {
			return nil, fmt.Errorf("postgres ledger requires a database connection")
		}
		backend := ledger.NewPostgresBackend(conns.DB)
		if err := backend.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure ledger schema: %w", err)
		}
		return ledger.NewStore(backend), nil
	case config.LedgerRedis:
		if conns.Cache == nil {
			return nil, fmt.Errorf("redis ledger requires a redis connection")
		}
		return ledger.NewStore(ledger.NewRedisBackend(conns.Cache)), nil
	case config.LedgerMemory:
		return ledger.NewStore(ledger.NewInMemory()), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}
}

// NewGateway converts the ether amounts in cfg to wei and builds the chain
// gateway over backend.
func NewGateway(cfg config.Config, backend chain.Backend, logger *slog.Logger) (*chain.Gateway, error) {
	signer, err := chain.NewKeySigner(cfg.MasterPrivateKey)
	if err != nil {
		return nil, err
	}
	amount, err := chain.EtherToWei(cfg.DistributionAmount)
	if err != nil {
		return nil, fmt.Errorf("distribution amount: %w", err)
	}
	reserve, err := chain.EtherToWei(cfg.MinMasterBalance)
	if err != nil {
		return nil, fmt.Errorf("min master balance: %w", err)
	}
	threshold, err := chain.EtherToWei(cfg.MinWalletBalanceThreshold)
	if err != nil {
		return nil, fmt.Errorf("min wallet balance threshold: %w", err)
	}
	return chain.NewGateway(backend, signer, chain.Config{
		DistributionAmount:        amount,
		MinMasterBalance:          reserve,
		MinWalletBalanceThreshold: threshold,
		ConfirmTimeout:            cfg.ConfirmTimeout,
	}, logger)
}

// NewLocker returns a Redis lock when a cache is available so several
// instances share wallet locks, and an in-process lock otherwise.
func NewLocker(cfg config.Config, conns *infra.Connections) lock.Locker {
	if conns.Cache != nil {
		return lock.NewRedisLocker(conns.Cache, cfg.ConfirmTimeout+time.Minute)
	}
	return lock.NewKeyedMutex()
}

// NewClaimSource builds the configured claim source wrapped so every attempt
// is recorded. It returns nil when claiming is disabled.
func NewClaimSource(cfg config.Config, store *ledger.Store, collector *metrics.Collector, notifier notification.Notifier, logger *slog.Logger) (claim.Source, error) {
	var source claim.Source
	switch cfg.ClaimSource {
	case config.ClaimSourceDisabled:
		return nil, nil
	case config.ClaimSourceStatic:
		source = claim.StaticSource{Success: true}
	case config.ClaimSourceBrowser:
		browser, err := claim.NewBrowserSource(claim.BrowserConfig{
			Email:          cfg.GoogleEmail,
			Password:       cfg.GooglePassword,
			WalletAddress:  cfg.FaucetWalletAddress,
			Headless:       cfg.Headless,
			ExecPath:       cfg.ChromiumPath,
			ScreenshotsDir: filepath.Join(cfg.DataDir, ledger.ScreenshotsDir),
		}, logger)
		if err != nil {
			return nil, err
		}
		source = browser
	default:
		return nil, fmt.Errorf("unknown claim source %q", cfg.ClaimSource)
	}
	return claim.NewRecording(source, store, collector, notifier, logger), nil
}
