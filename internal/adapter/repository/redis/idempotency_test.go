package redis

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestIdempotencyStoreClaimAndReplay(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()
	defer client.Close()

	store := NewIdempotencyStore(client)
	ctx := context.Background()

	exists, _, err := store.CheckAndSet(ctx, "key-1", nil, time.Minute)
	if err != nil || exists {
		t.Fatalf("expected first claim to succeed, got exists=%v err=%v", exists, err)
	}

	exists, value, err := store.CheckAndSet(ctx, "key-1", nil, time.Minute)
	if err != nil || !exists || string(value) != PendingMarker {
		t.Fatalf("expected pending marker, got exists=%v value=%q err=%v", exists, value, err)
	}

	if err := store.Update(ctx, "key-1", []byte(`{"status":201}`), time.Minute); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	exists, value, err = store.CheckAndSet(ctx, "key-1", nil, time.Minute)
	if err != nil || !exists || string(value) != `{"status":201}` {
		t.Fatalf("expected stored response, got exists=%v value=%q err=%v", exists, value, err)
	}
}

func TestIdempotencyStoreRelease(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()
	defer client.Close()

	store := NewIdempotencyStore(client)
	ctx := context.Background()

	if _, _, err := store.CheckAndSet(ctx, "key-1", nil, time.Minute); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := store.Release(ctx, "key-1"); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	exists, _, err := store.CheckAndSet(ctx, "key-1", nil, time.Minute)
	if err != nil || exists {
		t.Fatalf("expected released key to be claimable, got exists=%v err=%v", exists, err)
	}
}

func TestIdempotencyStoreTTL(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()
	defer client.Close()

	store := NewIdempotencyStore(client)
	ctx := context.Background()

	if _, _, err := store.CheckAndSet(ctx, "key-1", []byte("done"), time.Hour); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if ttl := mr.TTL("idempotency:key-1"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}

	mr.FastForward(2 * time.Hour)

	exists, _, err := store.CheckAndSet(ctx, "key-1", nil, time.Hour)
	if err != nil || exists {
		t.Fatalf("expected expired key to be claimable, got exists=%v err=%v", exists, err)
	}
}

func TestIdempotencyStoreSingleWinner(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()
	defer client.Close()

	store := NewIdempotencyStore(client)

	const callers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exists, _, err := store.CheckAndSet(context.Background(), "race", nil, time.Minute)
			if err != nil {
				t.Errorf("claim failed: %v", err)
				return
			}
			if !exists {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}
