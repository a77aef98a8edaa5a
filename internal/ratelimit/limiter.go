// Package ratelimit decides whether a wallet or IP may receive another
// disbursement inside the trailing window, and records grants.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/bytestrike/faucet_bot/internal/ledger"
)

// DefaultWindow is the trailing period over which grants are counted.
const DefaultWindow = 24 * time.Hour

// Scope identifies which key blocked a request.
type Scope string

const (
	ScopeWallet Scope = "wallet"
	ScopeIP     Scope = "ip"
)

// Limits configures the per-key ceilings.
type Limits struct {
	MaxPerWallet int
	MaxPerIP     int
	Window       time.Duration
}

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed    bool
	Reason     string
	Scope      Scope
	RetryAfter time.Duration
}

// Limiter evaluates and records grants against the rate-limit collection.
type Limiter struct {
	entries *ledger.Collection[ledger.RateLimitEntry]
	limits  Limits
	clock   clock.Clock
}

// New builds a limiter. A nil clock uses wall time.
func New(entries *ledger.Collection[ledger.RateLimitEntry], limits Limits, clk clock.Clock) *Limiter {
	if limits.Window <= 0 {
		limits.Window = DefaultWindow
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Limiter{entries: entries, limits: limits, clock: clk}
}

// Check reports whether wallet (and ip, when non-empty) may be granted now. The
// wallet is evaluated first; a wallet denial is reported without looking at the IP.
func (l *Limiter) Check(ctx context.Context, wallet, ip string) (Decision, error) {
	now := l.clock.Now()

	entry, ok, err := l.active(ctx, ledger.WalletKey(wallet), now)
	if err != nil {
		return Decision{}, fmt.Errorf("wallet rate limit: %w", err)
	}
	if ok && entry.RequestCount >= l.limits.MaxPerWallet {
		return l.deny(ScopeWallet, "wallet", entry, now), nil
	}

	if ip != "" {
		entry, ok, err := l.active(ctx, ledger.IPKey(ip), now)
		if err != nil {
			return Decision{}, fmt.Errorf("ip rate limit: %w", err)
		}
		if ok && entry.RequestCount >= l.limits.MaxPerIP {
			return l.deny(ScopeIP, "IP address", entry, now), nil
		}
	}

	return Decision{Allowed: true}, nil
}

// Grant counts one disbursement against wallet and, when non-empty, ip. Stale
// entries are pruned on every write. Repeating a grant with the same non-empty
// decisionID does not count twice.
func (l *Limiter) Grant(ctx context.Context, wallet, ip, decisionID string) error {
	now := l.clock.Now()
	err := l.entries.Mutate(ctx, func(entries []ledger.RateLimitEntry) ([]ledger.RateLimitEntry, error) {
		kept := entries[:0]
		for _, e := range entries {
			if l.fresh(e, now) {
				kept = append(kept, e)
			}
		}
		kept = bump(kept, ledger.RateLimitEntry{WalletAddress: ledger.NormalizeAddress(wallet)}, decisionID, now)
		if ip != "" {
			kept = bump(kept, ledger.RateLimitEntry{IPAddress: ip}, decisionID, now)
		}
		return kept, nil
	})
	if err != nil {
		return fmt.Errorf("grant rate limit: %w", err)
	}
	return nil
}

func bump(entries []ledger.RateLimitEntry, seed ledger.RateLimitEntry, decisionID string, now time.Time) []ledger.RateLimitEntry {
	key := seed.Key()
	for i := range entries {
		if entries[i].Key() != key {
			continue
		}
		if decisionID != "" && entries[i].LastDecisionID == decisionID {
			return entries
		}
		entries[i].RequestCount++
		entries[i].LastRequestTime = ledger.At(now)
		entries[i].LastDecisionID = decisionID
		return entries
	}
	seed.RequestCount = 1
	seed.LastRequestTime = ledger.At(now)
	seed.LastDecisionID = decisionID
	return append(entries, seed)
}

func (l *Limiter) active(ctx context.Context, key string, now time.Time) (ledger.RateLimitEntry, bool, error) {
	return l.entries.Find(ctx, func(e ledger.RateLimitEntry) bool {
		return e.Key() == key && l.fresh(e, now)
	})
}

func (l *Limiter) fresh(e ledger.RateLimitEntry, now time.Time) bool {
	return now.Sub(e.LastRequestTime.Time()) < l.limits.Window
}

func (l *Limiter) deny(scope Scope, label string, entry ledger.RateLimitEntry, now time.Time) Decision {
	remaining := l.limits.Window - now.Sub(entry.LastRequestTime.Time())
	hours := int(math.Ceil(remaining.Hours()))
	return Decision{
		Allowed:    false,
		Scope:      scope,
		RetryAfter: remaining,
		Reason:     fmt.Sprintf("Rate limit exceeded for %s. Try again in %d hours.", label, hours),
	}
}
