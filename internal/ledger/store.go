package ledger

import (
	"context"
)

// Store groups the three record collections the service owns.
type Store struct {
	Requests   *Collection[DisbursementRequest]
	Claims     *Collection[ClaimRecord]
	RateLimits *Collection[RateLimitEntry]
}

// NewStore builds a store on top of a persistence backend.
func NewStore(backend Backend) *Store {
	return &Store{
		Requests: NewCollection(backend, KindRequests, func(r DisbursementRequest) string {
			return NormalizeAddress(r.WalletAddress)
		}, 0),
		Claims: NewCollection(backend, KindClaims, func(c ClaimRecord) string {
			return c.TxHash
		}, MaxClaimHistory),
		RateLimits: NewCollection(backend, KindRateLimits, RateLimitEntry.Key, 0),
	}
}

// AddRequest appends a new disbursement request.
func (s *Store) AddRequest(ctx context.Context, request DisbursementRequest) error {
	request.WalletAddress = NormalizeAddress(request.WalletAddress)
	return s.Requests.Append(ctx, request)
}

// LatestRequest returns the most recent request for wallet.
func (s *Store) LatestRequest(ctx context.Context, wallet string) (DisbursementRequest, bool, error) {
	return s.Requests.FindByKey(ctx, NormalizeAddress(wallet))
}

// UpdateLatestRequest applies update to the most recent request for wallet and
// returns the stored result.
func (s *Store) UpdateLatestRequest(ctx context.Context, wallet string, update func(*DisbursementRequest)) (DisbursementRequest, error) {
	key := NormalizeAddress(wallet)
	var updated DisbursementRequest
	err := s.Requests.Mutate(ctx, func(records []DisbursementRequest) ([]DisbursementRequest, error) {
		for i := len(records) - 1; i >= 0; i-- {
			if NormalizeAddress(records[i].WalletAddress) == key {
				update(&records[i])
				updated = records[i]
				return records, nil
			}
		}
		return nil, ErrRequestNotFound
	})
	return updated, err
}

// AllRequests returns the full request history.
func (s *Store) AllRequests(ctx context.Context) ([]DisbursementRequest, error) {
	return s.Requests.LoadAll(ctx)
}

// SaveClaim appends a claim record, evicting the oldest beyond MaxClaimHistory.
func (s *Store) SaveClaim(ctx context.Context, claim ClaimRecord) error {
	return s.Claims.Append(ctx, claim)
}

// ClaimHistory returns the retained claim records, oldest first.
func (s *Store) ClaimHistory(ctx context.Context) ([]ClaimRecord, error) {
	return s.Claims.LoadAll(ctx)
}

// LastSuccessfulClaim returns the successful claim with the latest timestamp.
func (s *Store) LastSuccessfulClaim(ctx context.Context) (ClaimRecord, bool, error) {
	claims, err := s.Claims.LoadAll(ctx)
	if err != nil {
		return ClaimRecord{}, false, err
	}
	var (
		last  ClaimRecord
		found bool
	)
	for _, c := range claims {
		if !c.Success {
			continue
		}
		if !found || c.Timestamp > last.Timestamp {
			last = c
			found = true
		}
	}
	return last, found, nil
}
