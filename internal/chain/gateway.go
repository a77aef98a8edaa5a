// Package chain wraps the Ethereum node used to fund users from the master
// account: balance reads, solvency checks and confirmed value transfers.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
)

const (
	defaultConfirmTimeout = 2 * time.Minute
	defaultPollInterval   = 2 * time.Second
)

// ErrReverted is reported when a mined transfer has a failed receipt.
var ErrReverted = errors.New("Transaction reverted")

// Backend is the subset of the node API the gateway relies on. *ethclient.Client
// satisfies it.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config holds the distribution thresholds, all in wei.
type Config struct {
	DistributionAmount        *big.Int
	MinMasterBalance          *big.Int
	MinWalletBalanceThreshold *big.Int
	ConfirmTimeout            time.Duration
	PollInterval              time.Duration
}

// Check is the outcome of a pre-flight solvency check.
type Check struct {
	CanDistribute bool
	Reason        string
}

// Result describes a distribution attempt. Failures are reported through
// Error, never as a returned error.
type Result struct {
	Success bool
	TxHash  string
	Amount  string
	Error   string
}

// StatusReport is a point-in-time view of the master account.
type StatusReport struct {
	MasterWallet       common.Address
	Balance            *big.Int
	GasPrice           *big.Int
	DistributionAmount *big.Int
	MinMasterBalance   *big.Int
	Threshold          *big.Int
	MaxDistributions   *big.Int
}

// Gateway sends funds from the master account.
type Gateway struct {
	backend Backend
	signer  Signer
	cfg     Config
	logger  *slog.Logger

	chainMu sync.Mutex
	chainID *big.Int

	// sendMu serialises nonce assignment and submission for the master account.
	sendMu sync.Mutex
}

// NewGateway validates cfg and builds a gateway.
func NewGateway(backend Backend, signer Signer, cfg Config, logger *slog.Logger) (*Gateway, error) {
	if backend == nil {
		return nil, fmt.Errorf("chain backend is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if cfg.DistributionAmount == nil || cfg.DistributionAmount.Sign() <= 0 {
		return nil, fmt.Errorf("distribution amount must be positive")
	}
	if cfg.MinMasterBalance == nil {
		cfg.MinMasterBalance = new(big.Int)
	}
	if cfg.MinWalletBalanceThreshold == nil {
		cfg.MinWalletBalanceThreshold = new(big.Int)
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{backend: backend, signer: signer, cfg: cfg, logger: logger}
	logger.Info("eth distributor initialized", slog.String("master_wallet", signer.Address().Hex()))
	return g, nil
}

// MasterAddress returns the address funds are sent from.
func (g *Gateway) MasterAddress() common.Address {
	return g.signer.Address()
}

// DistributionAmount returns the per-disbursement amount in wei.
func (g *Gateway) DistributionAmount() *big.Int {
	return new(big.Int).Set(g.cfg.DistributionAmount)
}

// Threshold returns the balance at or above which a user counts as funded.
func (g *Gateway) Threshold() *big.Int {
	return new(big.Int).Set(g.cfg.MinWalletBalanceThreshold)
}

// MasterBalance reads the master account balance at the latest block.
func (g *Gateway) MasterBalance(ctx context.Context) (*big.Int, error) {
	return g.backend.BalanceAt(ctx, g.signer.Address(), nil)
}

// UserBalance reads address's balance at the latest block.
func (g *Gateway) UserBalance(ctx context.Context, address string) (*big.Int, error) {
	return g.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
}

// GasPrice returns the node's suggested gas price.
func (g *Gateway) GasPrice(ctx context.Context) (*big.Int, error) {
	return g.backend.SuggestGasPrice(ctx)
}

// EstimateGas estimates the gas a distribution to address would use.
func (g *Gateway) EstimateGas(ctx context.Context, address string) (uint64, error) {
	to := common.HexToAddress(address)
	return g.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  g.signer.Address(),
		To:    &to,
		Value: g.DistributionAmount(),
	})
}

// CheckCanDistribute verifies the master keeps its reserve after a transfer and
// that the user is still below the funding threshold, in that order.
func (g *Gateway) CheckCanDistribute(ctx context.Context, address string) (Check, error) {
	master, err := g.MasterBalance(ctx)
	if err != nil {
		return Check{}, fmt.Errorf("read master balance: %w", err)
	}
	need := new(big.Int).Add(g.cfg.MinMasterBalance, g.cfg.DistributionAmount)
	if master.Cmp(need) < 0 {
		return Check{Reason: fmt.Sprintf("Insufficient master balance. Current: %s ETH, Need: %s ETH",
			FormatEther(master), FormatEther(need))}, nil
	}

	user, err := g.UserBalance(ctx, address)
	if err != nil {
		return Check{}, fmt.Errorf("read user balance: %w", err)
	}
	if user.Cmp(g.cfg.MinWalletBalanceThreshold) >= 0 {
		return Check{Reason: fmt.Sprintf("User already has sufficient balance: %s ETH (threshold: %s ETH)",
			FormatEther(user), FormatEther(g.cfg.MinWalletBalanceThreshold))}, nil
	}

	return Check{CanDistribute: true}, nil
}

// DistributeETH re-runs the solvency check, sends the distribution amount to
// address and waits for one confirmation.
func (g *Gateway) DistributeETH(ctx context.Context, address string) (result Result) {
	log := g.logger.With(slog.String("to", address))
	defer func() {
		if r := recover(); r != nil {
			result = Result{Error: fmt.Sprint(r)}
			log.Error("distribution panicked", slog.Any("panic", r))
		}
	}()

	check, err := g.CheckCanDistribute(ctx, address)
	if err != nil {
		log.Error("distribution failed", slog.Any("error", err))
		return Result{Error: err.Error()}
	}
	if !check.CanDistribute {
		log.Warn("distribution refused", slog.String("reason", check.Reason))
		return Result{Error: check.Reason}
	}

	result.Amount = FormatEther(g.cfg.DistributionAmount)

	hash, err := g.send(ctx, common.HexToAddress(address))
	if err != nil {
		log.Error("distribution failed", slog.Any("error", err))
		result.Error = err.Error()
		return result
	}
	log.Info("transfer submitted, waiting for confirmation", slog.String("tx_hash", hash.Hex()))

	receipt, err := g.waitMined(ctx, hash)
	if err != nil {
		log.Error("distribution failed", slog.String("tx_hash", hash.Hex()), slog.Any("error", err))
		result.Error = err.Error()
		return result
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Error("transaction reverted", slog.String("tx_hash", hash.Hex()))
		result.Error = ErrReverted.Error()
		return result
	}

	log.Info("distribution successful", slog.String("tx_hash", hash.Hex()), slog.String("amount", result.Amount))
	result.Success = true
	result.TxHash = hash.Hex()
	return result
}

// Status reports balances, gas price and how many distributions the balance
// above the reserve still covers.
func (g *Gateway) Status(ctx context.Context) (StatusReport, error) {
	balance, err := g.MasterBalance(ctx)
	if err != nil {
		return StatusReport{}, fmt.Errorf("read master balance: %w", err)
	}
	gasPrice, err := g.GasPrice(ctx)
	if err != nil {
		return StatusReport{}, fmt.Errorf("read gas price: %w", err)
	}

	available := new(big.Int)
	if balance.Cmp(g.cfg.MinMasterBalance) > 0 {
		available.Sub(balance, g.cfg.MinMasterBalance)
	}
	return StatusReport{
		MasterWallet:       g.signer.Address(),
		Balance:            balance,
		GasPrice:           gasPrice,
		DistributionAmount: g.DistributionAmount(),
		MinMasterBalance:   new(big.Int).Set(g.cfg.MinMasterBalance),
		Threshold:          g.Threshold(),
		MaxDistributions:   new(big.Int).Quo(available, g.cfg.DistributionAmount),
	}, nil
}

func (g *Gateway) send(ctx context.Context, to common.Address) (common.Hash, error) {
	chainID, err := g.chainIDFor(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("read chain id: %w", err)
	}
	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	nonce, err := g.backend.PendingNonceAt(ctx, g.signer.Address())
	if err != nil {
		return common.Hash{}, fmt.Errorf("read nonce: %w", err)
	}
	gasPrice, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("read gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    g.DistributionAmount(),
		Gas:      params.TxGas,
		GasPrice: gasPrice,
	})
	signed, err := g.signer.SignTx(tx, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transfer: %w", err)
	}
	if err := g.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send transfer: %w", err)
	}
	return signed.Hash(), nil
}

func (g *Gateway) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("read receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for confirmation of %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (g *Gateway) chainIDFor(ctx context.Context) (*big.Int, error) {
	g.chainMu.Lock()
	defer g.chainMu.Unlock()
	if g.chainID != nil {
		return g.chainID, nil
	}
	id, err := g.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	g.chainID = id
	return id, nil
}
