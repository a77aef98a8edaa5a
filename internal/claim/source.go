// Package claim obtains testnet funds from the public faucet into the master
// wallet.
package claim

import (
	"context"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/bytestrike/faucet_bot/internal/ledger"
	"github.com/bytestrike/faucet_bot/internal/metrics"
	"github.com/bytestrike/faucet_bot/internal/notification"
)

// Amount is what one faucet claim is expected to yield, in ether.
const Amount = "0.05"

// Source performs one claim attempt. Failures are reported in the returned
// record, never as a panic or error.
type Source interface {
	Attempt(ctx context.Context) ledger.ClaimRecord
}

// StaticSource reports a fixed outcome without touching the network.
type StaticSource struct {
	Clock   clock.Clock
	Success bool
	TxHash  string
	Error   string
}

// Attempt returns the configured outcome stamped with the current time.
func (s StaticSource) Attempt(_ context.Context) ledger.ClaimRecord {
	clk := s.Clock
	if clk == nil {
		clk = clock.New()
	}
	return ledger.ClaimRecord{
		Timestamp: ledger.At(clk.Now()),
		Amount:    Amount,
		Success:   s.Success,
		TxHash:    s.TxHash,
		Error:     s.Error,
	}
}

// Recording persists every attempt of the wrapped source to the claim history.
type Recording struct {
	source   Source
	store    *ledger.Store
	metrics  *metrics.Collector
	notifier notification.Notifier
	clock    clock.Clock
	logger   *slog.Logger
}

// NewRecording wraps source. collector and notifier may be nil.
func NewRecording(source Source, store *ledger.Store, collector *metrics.Collector, notifier notification.Notifier, logger *slog.Logger) *Recording {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recording{
		source:   source,
		store:    store,
		metrics:  collector,
		notifier: notifier,
		clock:    clock.New(),
		logger:   logger,
	}
}

// Attempt runs the wrapped source and appends its record to the store.
func (r *Recording) Attempt(ctx context.Context) ledger.ClaimRecord {
	record := r.source.Attempt(ctx)
	if record.Timestamp == 0 {
		record.Timestamp = ledger.At(r.clock.Now())
	}
	if record.Amount == "" {
		record.Amount = Amount
	}

	if err := r.store.SaveClaim(context.WithoutCancel(ctx), record); err != nil {
		r.logger.Error("failed to save claim history", slog.Any("error", err))
	}
	r.metrics.RecordClaim(record.Success)

	if record.Success {
		r.logger.Info("faucet claim successful", slog.String("tx_hash", record.TxHash))
		return record
	}
	r.logger.Warn("faucet claim failed", slog.String("error", record.Error), slog.String("screenshot", record.Screenshot))
	if r.notifier != nil {
		_ = r.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindClaimFailed,
			Destination: "operator",
			Body:        record.Error,
		})
	}
	return record
}
