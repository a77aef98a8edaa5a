package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestStore_RequestLookupReturnsMostRecent(t *testing.T) {
	store := NewStore(NewInMemory())
	ctx := context.Background()

	wallet := "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"
	if err := store.AddRequest(ctx, DisbursementRequest{ID: "first", WalletAddress: wallet, Status: StatusRejected}); err != nil {
		t.Fatalf("add first: %v", err)
	}
	if err := store.AddRequest(ctx, DisbursementRequest{ID: "second", WalletAddress: wallet, Status: StatusApproved}); err != nil {
		t.Fatalf("add second: %v", err)
	}

	req, ok, err := store.LatestRequest(ctx, wallet)
	if err != nil || !ok {
		t.Fatalf("latest request: ok=%v err=%v", ok, err)
	}
	if req.ID != "second" {
		t.Fatalf("expected most recent request, got %s", req.ID)
	}
	if req.WalletAddress != NormalizeAddress(wallet) {
		t.Fatalf("expected lower-cased address, got %s", req.WalletAddress)
	}
}

func TestStore_UpdateLatestRequest(t *testing.T) {
	store := NewStore(NewInMemory())
	ctx := context.Background()
	wallet := "0x00000000000000000000000000000000000000aa"

	store.AddRequest(ctx, DisbursementRequest{ID: "old", WalletAddress: wallet, Status: StatusCompleted})
	store.AddRequest(ctx, DisbursementRequest{ID: "new", WalletAddress: wallet, Status: StatusApproved})

	updated, err := store.UpdateLatestRequest(ctx, wallet, func(r *DisbursementRequest) {
		r.Status = StatusRejected
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != "new" || updated.Status != StatusRejected {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	all, _ := store.AllRequests(ctx)
	if all[0].Status != StatusCompleted {
		t.Fatalf("older request must be untouched, got %s", all[0].Status)
	}

	if _, err := store.UpdateLatestRequest(ctx, "0x00000000000000000000000000000000000000bb", func(*DisbursementRequest) {}); err != ErrRequestNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_ClaimHistoryIsBounded(t *testing.T) {
	store := NewStore(NewInMemory())
	ctx := context.Background()

	for i := 0; i < MaxClaimHistory+1; i++ {
		if err := store.SaveClaim(ctx, ClaimRecord{Timestamp: Millis(i), Amount: "0.05"}); err != nil {
			t.Fatalf("save claim %d: %v", i, err)
		}
	}

	claims, err := store.ClaimHistory(ctx)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(claims) != MaxClaimHistory {
		t.Fatalf("expected %d claims, got %d", MaxClaimHistory, len(claims))
	}
	if claims[0].Timestamp != 1 {
		t.Fatalf("expected oldest claim evicted, first timestamp=%d", claims[0].Timestamp)
	}
	if claims[len(claims)-1].Timestamp != MaxClaimHistory {
		t.Fatalf("expected newest claim retained, last timestamp=%d", claims[len(claims)-1].Timestamp)
	}
}

func TestStore_LastSuccessfulClaim(t *testing.T) {
	store := NewStore(NewInMemory())
	ctx := context.Background()

	if _, ok, err := store.LastSuccessfulClaim(ctx); err != nil || ok {
		t.Fatalf("empty history: ok=%v err=%v", ok, err)
	}

	store.SaveClaim(ctx, ClaimRecord{Timestamp: 100, Success: false})
	if _, ok, _ := store.LastSuccessfulClaim(ctx); ok {
		t.Fatal("failed claims must not count as successful")
	}

	now := time.Now()
	store.SaveClaim(ctx, ClaimRecord{Timestamp: At(now), Success: true, TxHash: "latest"})
	store.SaveClaim(ctx, ClaimRecord{Timestamp: At(now.Add(-time.Hour)), Success: true, TxHash: "appended-later-but-older"})
	store.SaveClaim(ctx, ClaimRecord{Timestamp: At(now.Add(time.Minute)), Success: false})

	last, ok, err := store.LastSuccessfulClaim(ctx)
	if err != nil || !ok {
		t.Fatalf("last successful: ok=%v err=%v", ok, err)
	}
	if last.TxHash != "latest" {
		t.Fatalf("expected max timestamp success, got %s", last.TxHash)
	}
}

func TestCollection_ConcurrentAppends(t *testing.T) {
	store := NewStore(NewInMemory())
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wallet := fmt.Sprintf("0x%040d", i)
			if err := store.AddRequest(ctx, DisbursementRequest{WalletAddress: wallet, Status: StatusApproved}); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	all, err := store.AllRequests(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(all) != workers {
		t.Fatalf("expected %d requests, got %d", workers, len(all))
	}
}

func TestCollection_MutateErrorLeavesDocumentUntouched(t *testing.T) {
	backend := NewInMemory()
	Seed(backend, KindRateLimits, []RateLimitEntry{{IPAddress: "10.0.0.1", RequestCount: 2}})
	store := NewStore(backend)
	ctx := context.Background()

	boom := fmt.Errorf("boom")
	err := store.RateLimits.Mutate(ctx, func(entries []RateLimitEntry) ([]RateLimitEntry, error) {
		return nil, boom
	})
	if err != boom {
		t.Fatalf("expected mutate error, got %v", err)
	}

	entry, ok, err := store.RateLimits.FindByKey(ctx, IPKey("10.0.0.1"))
	if err != nil || !ok {
		t.Fatalf("find: ok=%v err=%v", ok, err)
	}
	if entry.RequestCount != 2 {
		t.Fatalf("expected untouched count 2, got %d", entry.RequestCount)
	}
}
