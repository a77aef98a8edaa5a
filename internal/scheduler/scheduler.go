// Package scheduler triggers faucet claims on a fixed interval and once shortly
// after startup.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/bytestrike/faucet_bot/internal/claim"
	"github.com/bytestrike/faucet_bot/internal/ledger"
)

const (
	// DefaultStartupDelay is how long after Start the catch-up claim runs.
	DefaultStartupDelay = 10 * time.Second
	// earlySlack lets a tick proceed when it lands slightly before the interval.
	earlySlack = 30 * time.Minute
)

// Due reports whether a claim should run now. A zero last means no successful
// claim exists yet.
func Due(last time.Time, interval time.Duration, now time.Time) bool {
	return last.IsZero() || now.Sub(last) >= interval
}

// TooSoon reports whether a scheduled tick should be skipped because the last
// success is more than the slack away from a full interval.
func TooSoon(last time.Time, interval time.Duration, now time.Time) bool {
	return !last.IsZero() && now.Sub(last) < interval-earlySlack
}

// Config controls the claim cadence.
type Config struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Scheduler runs claim attempts without ever overlapping them.
type Scheduler struct {
	source claim.Source
	store  *ledger.Store
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	attemptMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	startup *clock.Timer
	wg      sync.WaitGroup
}

// New builds a scheduler. source is expected to persist its own records.
func New(source claim.Source, store *ledger.Store, cfg Config, clk clock.Clock, logger *slog.Logger) (*Scheduler, error) {
	if source == nil || store == nil {
		return nil, fmt.Errorf("claim source and store are required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("claim interval must be positive")
	}
	if cfg.StartupDelay <= 0 {
		cfg.StartupDelay = DefaultStartupDelay
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{source: source, store: store, cfg: cfg, clock: clk, logger: logger}, nil
}

// Start logs the claim state, begins the interval ticker and arms the one-shot
// startup check. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	last, err := s.lastSuccess(ctx)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	attrs := []any{
		slog.Duration("interval", s.cfg.Interval),
		slog.Bool("due", Due(last, s.cfg.Interval, now)),
	}
	if !last.IsZero() {
		attrs = append(attrs,
			slog.Time("last_claim", last),
			slog.Float64("hours_since_last_claim", now.Sub(last).Hours()))
	}
	s.logger.Info("claim scheduler starting", attrs...)

	s.stopCh = make(chan struct{})
	s.running = true

	ticker := s.clock.Ticker(s.cfg.Interval)
	s.wg.Add(1)
	go s.loop(ctx, ticker, s.stopCh)

	s.wg.Add(1)
	s.startup = s.clock.AfterFunc(s.cfg.StartupDelay, func() {
		defer s.wg.Done()
		s.onStartup(ctx)
	})
	return nil
}

// Stop halts the ticker and waits for an in-flight attempt to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	if s.startup != nil && s.startup.Stop() {
		s.wg.Done()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("claim scheduler stopped")
}

// RunNow performs one attempt unless another is already in flight, in which
// case it returns false.
func (s *Scheduler) RunNow(ctx context.Context) (ledger.ClaimRecord, bool) {
	if !s.attemptMu.TryLock() {
		s.logger.Warn("claim attempt already in progress, skipping")
		return ledger.ClaimRecord{}, false
	}
	defer s.attemptMu.Unlock()

	s.logger.Info("running faucet claim")
	record := s.source.Attempt(ctx)
	if record.Success {
		s.logger.Info("faucet claim completed", slog.String("tx_hash", record.TxHash))
	} else {
		s.logger.Error("faucet claim failed", slog.String("error", record.Error))
	}
	return record, true
}

func (s *Scheduler) loop(ctx context.Context, ticker *clock.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.onTick(ctx)
		}
	}
}

func (s *Scheduler) onTick(ctx context.Context) {
	last, err := s.lastSuccess(ctx)
	if err != nil {
		s.logger.Error("read claim history", slog.Any("error", err))
		return
	}
	if TooSoon(last, s.cfg.Interval, s.clock.Now()) {
		s.logger.Info("skipping scheduled claim, last success too recent", slog.Time("last_claim", last))
		return
	}
	s.RunNow(ctx)
}

func (s *Scheduler) onStartup(ctx context.Context) {
	select {
	case <-s.stopped():
		return
	default:
	}
	last, err := s.lastSuccess(ctx)
	if err != nil {
		s.logger.Error("read claim history", slog.Any("error", err))
		return
	}
	if !Due(last, s.cfg.Interval, s.clock.Now()) {
		s.logger.Info("no startup claim needed", slog.Time("last_claim", last))
		return
	}
	s.RunNow(ctx)
}

func (s *Scheduler) stopped() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh
}

func (s *Scheduler) lastSuccess(ctx context.Context) (time.Time, error) {
	record, found, err := s.store.LastSuccessfulClaim(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("last successful claim: %w", err)
	}
	if !found {
		return time.Time{}, nil
	}
	return record.Timestamp.Time(), nil
}
