package ledger

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrRequestNotFound occurs when no disbursement request exists for a wallet.
	ErrRequestNotFound = errors.New("request not found")

	// ErrUnknownKind indicates a backend was asked for a collection it does not hold.
	ErrUnknownKind = errors.New("unknown record kind")
)

// Kind names one of the independent record collections.
type Kind string

const (
	KindRequests   Kind = "requests"
	KindClaims     Kind = "claims"
	KindRateLimits Kind = "rate-limits"
)

// Kinds lists every collection the store manages.
var Kinds = []Kind{KindRequests, KindClaims, KindRateLimits}

// MaxClaimHistory bounds the claim collection; older records are evicted first.
const MaxClaimHistory = 100

// Status is the lifecycle state of a disbursement request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

// Millis is a point in time serialised as unix milliseconds.
type Millis int64

// At converts t to Millis.
func At(t time.Time) Millis {
	return Millis(t.UnixMilli())
}

// Time returns the UTC time for m.
func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m)).UTC()
}

// DisbursementRequest records one user request for funds.
type DisbursementRequest struct {
	ID            string `json:"id,omitempty"`
	WalletAddress string `json:"walletAddress"`
	IPAddress     string `json:"ipAddress,omitempty"`
	Timestamp     Millis `json:"timestamp"`
	Status        Status `json:"status"`
	TxHash        string `json:"txHash,omitempty"`
	Amount        string `json:"amount,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ClaimRecord captures the outcome of a single faucet claim attempt.
type ClaimRecord struct {
	Timestamp  Millis `json:"timestamp"`
	Amount     string `json:"amount"`
	TxHash     string `json:"txHash,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
}

// RateLimitEntry counts grants for exactly one wallet or one IP address.
type RateLimitEntry struct {
	WalletAddress   string `json:"walletAddress,omitempty"`
	IPAddress       string `json:"ipAddress,omitempty"`
	LastRequestTime Millis `json:"lastRequestTime"`
	RequestCount    int    `json:"requestCount"`
	LastDecisionID  string `json:"lastDecisionId,omitempty"`
}

// WalletKey is the lookup key for a wallet-scoped entry.
func WalletKey(address string) string {
	return "wallet:" + NormalizeAddress(address)
}

// IPKey is the lookup key for an IP-scoped entry.
func IPKey(ip string) string {
	return "ip:" + ip
}

// Key returns the entry's lookup key.
func (e RateLimitEntry) Key() string {
	if e.WalletAddress != "" {
		return WalletKey(e.WalletAddress)
	}
	return IPKey(e.IPAddress)
}

// NormalizeAddress returns the canonical (lower-cased) form of a hex address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Backend persists whole collections as JSON documents. Save must replace the
// stored document atomically; Load returns nil when nothing was stored yet.
type Backend interface {
	Load(ctx context.Context, kind Kind) ([]byte, error)
	Save(ctx context.Context, kind Kind, document []byte) error
}
