// Package disbursement runs the request workflow: validation, rate limiting,
// eligibility, transfer and result recording.
package disbursement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bytestrike/faucet_bot/internal/chain"
	"github.com/bytestrike/faucet_bot/internal/ledger"
	"github.com/bytestrike/faucet_bot/internal/lock"
	"github.com/bytestrike/faucet_bot/internal/metrics"
	"github.com/bytestrike/faucet_bot/internal/notification"
	"github.com/bytestrike/faucet_bot/internal/ratelimit"
)

const (
	// SuccessMessage is returned to the user once funds are confirmed.
	SuccessMessage = "ETH sent successfully!"

	defaultFailure = "Distribution failed"
)

var (
	// ErrInvalidAddress indicates the wallet address is not 0x plus 40 hex digits.
	ErrInvalidAddress = errors.New("Invalid wallet address")
	// ErrRateLimited indicates the wallet or IP exhausted its daily allowance.
	ErrRateLimited = errors.New("rate limited")
	// ErrAlreadyFunded indicates the wallet balance is at or above the threshold.
	ErrAlreadyFunded = errors.New("wallet already funded")
	// ErrDistributionFailed indicates the transfer was attempted and did not confirm.
	ErrDistributionFailed = errors.New("distribution failed")
)

// PendingRequestError is returned while the wallet's latest request is still
// pending.
type PendingRequestError struct {
	Request ledger.DisbursementRequest
}

func (e *PendingRequestError) Error() string {
	return "You already have a pending request"
}

// ReasonError carries a user-facing message for a sentinel failure.
type ReasonError struct {
	Kind   error
	Reason string
}

func (e *ReasonError) Error() string { return e.Reason }

func (e *ReasonError) Unwrap() error { return e.Kind }

// Gateway is the part of the chain gateway the workflow needs.
type Gateway interface {
	UserBalance(ctx context.Context, address string) (*big.Int, error)
	Threshold() *big.Int
	DistributeETH(ctx context.Context, address string) chain.Result
}

// Limiter is the part of the rate limiter the workflow needs.
type Limiter interface {
	Check(ctx context.Context, wallet, ip string) (ratelimit.Decision, error)
	Grant(ctx context.Context, wallet, ip, decisionID string) error
}

// Deps bundles the collaborators of a Service. Locker, Notifier, Metrics,
// Clock and Logger are optional.
type Deps struct {
	Store    *ledger.Store
	Limiter  Limiter
	Gateway  Gateway
	Locker   lock.Locker
	Notifier notification.Notifier
	Metrics  *metrics.Collector
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Service orchestrates disbursement requests.
type Service struct {
	store    *ledger.Store
	limiter  Limiter
	gateway  Gateway
	locker   lock.Locker
	notifier notification.Notifier
	metrics  *metrics.Collector
	clock    clock.Clock
	logger   *slog.Logger
}

// NewService constructs a disbursement service.
func NewService(deps Deps) (*Service, error) {
	if deps.Store == nil || deps.Limiter == nil || deps.Gateway == nil {
		return nil, fmt.Errorf("store, limiter and gateway are required")
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewKeyedMutex()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		store:    deps.Store,
		limiter:  deps.Limiter,
		gateway:  deps.Gateway,
		locker:   deps.Locker,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}, nil
}

// Input captures a user request for funds.
type Input struct {
	WalletAddress string
	IPAddress     string
}

// Outcome describes a confirmed disbursement.
type Outcome struct {
	Message string
	TxHash  string
	Amount  string
	Request ledger.DisbursementRequest
}

// Request validates, rate limits and funds a wallet. The wallet stays locked
// from validation until the request record reaches its final state.
func (s *Service) Request(ctx context.Context, input Input) (Outcome, error) {
	if !chain.IsAddress(input.WalletAddress) {
		s.metrics.RecordDisbursement("invalid")
		return Outcome{}, ErrInvalidAddress
	}
	wallet := ledger.NormalizeAddress(input.WalletAddress)
	log := s.logger.With(slog.String("wallet", wallet), slog.String("ip", input.IPAddress))

	release, err := s.locker.Acquire(ctx, wallet)
	if err != nil {
		return Outcome{}, fmt.Errorf("lock wallet: %w", err)
	}
	defer release()

	// The IP allowance is shared across wallets, so its check and grant run
	// under an IP lock that is released before the transfer.
	releaseIP := func() {}
	if input.IPAddress != "" {
		if releaseIP, err = s.locker.Acquire(ctx, ledger.IPKey(input.IPAddress)); err != nil {
			return Outcome{}, fmt.Errorf("lock ip: %w", err)
		}
	}
	ipHeld := true
	defer func() {
		if ipHeld {
			releaseIP()
		}
	}()

	decision, err := s.limiter.Check(ctx, wallet, input.IPAddress)
	if err != nil {
		return Outcome{}, err
	}
	if !decision.Allowed {
		log.Info("request rate limited", slog.String("scope", string(decision.Scope)))
		s.metrics.RecordDisbursement("rate_limited")
		return Outcome{}, &ReasonError{Kind: ErrRateLimited, Reason: decision.Reason}
	}

	existing, found, err := s.store.LatestRequest(ctx, wallet)
	if err != nil {
		return Outcome{}, err
	}
	if found && existing.Status == ledger.StatusPending {
		s.metrics.RecordDisbursement("pending")
		return Outcome{}, &PendingRequestError{Request: existing}
	}

	balance, err := s.gateway.UserBalance(ctx, wallet)
	if err != nil {
		return Outcome{}, fmt.Errorf("read wallet balance: %w", err)
	}
	threshold := s.gateway.Threshold()
	if balance.Cmp(threshold) >= 0 {
		s.metrics.RecordDisbursement("already_funded")
		return Outcome{}, &ReasonError{
			Kind: ErrAlreadyFunded,
			Reason: fmt.Sprintf("Your wallet already has sufficient balance (%s ETH). Threshold: %s ETH",
				decimal.NewFromBigInt(balance, -18).StringFixed(4), chain.FormatEther(threshold)),
		}
	}

	request := ledger.DisbursementRequest{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		IPAddress:     input.IPAddress,
		Timestamp:     ledger.At(s.clock.Now()),
		Status:        ledger.StatusApproved,
	}
	if err := s.store.AddRequest(ctx, request); err != nil {
		return Outcome{}, err
	}

	// The record update must land even if the caller went away mid-transfer.
	recordCtx := context.WithoutCancel(ctx)

	if err := s.limiter.Grant(ctx, wallet, input.IPAddress, request.ID); err != nil {
		s.reject(recordCtx, log, wallet, fmt.Sprintf("record rate limit: %v", err))
		s.metrics.RecordDisbursement("rejected")
		return Outcome{}, fmt.Errorf("grant rate limit: %w", err)
	}
	releaseIP()
	ipHeld = false

	started := s.clock.Now()
	result := s.gateway.DistributeETH(ctx, wallet)
	s.metrics.ObserveTransfer(s.clock.Since(started))

	if !result.Success {
		reason := result.Error
		if reason == "" {
			reason = defaultFailure
		}
		s.reject(recordCtx, log, wallet, reason)
		log.Warn("distribution failed", slog.String("reason", reason))
		s.metrics.RecordDisbursement("rejected")
		s.notify(recordCtx, notification.KindDisbursementFailed, wallet, reason)
		return Outcome{}, &ReasonError{Kind: ErrDistributionFailed, Reason: reason}
	}

	updated, err := s.store.UpdateLatestRequest(recordCtx, wallet, func(r *ledger.DisbursementRequest) {
		r.Status = ledger.StatusCompleted
		r.TxHash = result.TxHash
		r.Amount = result.Amount
	})
	if err != nil {
		log.Error("failed to record completed request", slog.String("tx_hash", result.TxHash), slog.Any("error", err))
		updated = request
	}

	log.Info("disbursement completed", slog.String("tx_hash", result.TxHash), slog.String("amount", result.Amount))
	s.metrics.RecordDisbursement("completed")
	s.notify(recordCtx, notification.KindDisbursementCompleted, wallet,
		fmt.Sprintf("Sent %s ETH in %s", result.Amount, result.TxHash))

	return Outcome{
		Message: SuccessMessage,
		TxHash:  result.TxHash,
		Amount:  result.Amount,
		Request: updated,
	}, nil
}

// Latest returns the most recent request for address.
func (s *Service) Latest(ctx context.Context, address string) (ledger.DisbursementRequest, error) {
	request, found, err := s.store.LatestRequest(ctx, address)
	if err != nil {
		return ledger.DisbursementRequest{}, err
	}
	if !found {
		return ledger.DisbursementRequest{}, ledger.ErrRequestNotFound
	}
	return request, nil
}

// All returns every recorded request in insertion order.
func (s *Service) All(ctx context.Context) ([]ledger.DisbursementRequest, error) {
	return s.store.AllRequests(ctx)
}

// reject moves the wallet's latest request to its terminal rejected state.
func (s *Service) reject(ctx context.Context, log *slog.Logger, wallet, reason string) {
	if _, err := s.store.UpdateLatestRequest(ctx, wallet, func(r *ledger.DisbursementRequest) {
		r.Status = ledger.StatusRejected
		r.Error = reason
	}); err != nil {
		log.Error("failed to record rejected request", slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, kind, wallet, body string) {
	if s.notifier == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = s.notifier.Send(sendCtx, notification.Message{Kind: kind, Destination: wallet, Body: body})
}
