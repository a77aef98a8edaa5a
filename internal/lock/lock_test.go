package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func exerciseExclusion(t *testing.T, l Locker) {
	t.Helper()
	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "0xabc")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer release()
			n := atomic.AddInt32(&inside, 1)
			if n > atomic.LoadInt32(&maxSeen) {
				atomic.StoreInt32(&maxSeen, n)
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen)
	}
}

func TestKeyedMutexExclusion(t *testing.T) {
	m := NewKeyedMutex()
	exerciseExclusion(t, m)
	if m.Len() != 0 {
		t.Fatalf("expected entries to be released, got %d", m.Len())
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	releaseA, err := m.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := m.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("a different key must not block: %v", err)
	}
	releaseB()
}

func TestKeyedMutexContextCancel(t *testing.T) {
	m := NewKeyedMutex()
	release, _ := m.Acquire(context.Background(), "k")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Acquire(ctx, "k"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}

	release()
	release()
	if m.Len() != 0 {
		t.Fatalf("expected no tracked keys, got %d", m.Len())
	}
}

func TestRedisLocker(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLocker(client, time.Minute)
	exerciseExclusion(t, l)

	release, err := l.Acquire(context.Background(), "0xdef")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !mr.Exists(redisLockPrefix + "0xdef") {
		t.Fatal("expected lock key in redis")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "0xdef"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected contention, got %v", err)
	}

	release()
	if mr.Exists(redisLockPrefix + "0xdef") {
		t.Fatal("expected lock key removed on release")
	}
}

func TestRedisLockerDoesNotReleaseForeignToken(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLocker(client, time.Minute)
	release, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// Simulate expiry and takeover by another holder.
	mr.Set(redisLockPrefix+"k", "someone-else")
	release()

	got, _ := mr.Get(redisLockPrefix + "k")
	if got != "someone-else" {
		t.Fatalf("foreign lock must survive release, got %q", got)
	}
}
