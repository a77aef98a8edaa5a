package ledger

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisBackend_PersistsAcrossStores(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	first := NewStore(NewRedisBackend(client))
	history, err := first.ClaimHistory(ctx)
	if err != nil || len(history) != 0 {
		t.Fatalf("expected empty history, got %v (%v)", history, err)
	}
	if err := first.SaveClaim(ctx, ClaimRecord{Timestamp: 10, Amount: "0.05", Success: true, TxHash: "0xaa"}); err != nil {
		t.Fatalf("save claim: %v", err)
	}

	if !mr.Exists(redisKeyPrefix + string(KindClaims)) {
		t.Fatalf("expected claims document under %s", redisKeyPrefix+string(KindClaims))
	}

	second := NewStore(NewRedisBackend(client))
	last, ok, err := second.LastSuccessfulClaim(ctx)
	if err != nil || !ok {
		t.Fatalf("last successful claim: ok=%v err=%v", ok, err)
	}
	if last.TxHash != "0xaa" {
		t.Fatalf("unexpected claim %+v", last)
	}
}
