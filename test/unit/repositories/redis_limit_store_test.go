package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	impl "github.com/codeweberdotcom/limitguard/internal/infrastructure/repositories"
)

func newRedisStore(t *testing.T) (*miniredis.Miniredis, *impl.RedisLimitStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, impl.NewRedisLimitStore(client, nil)
}

func TestRedisIncrement_CountsWithinWindow(t *testing.T) {
	mr, store := newRedisStore(t)
	ctx := context.Background()

	first, err := store.Increment(ctx, "login", "alice", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if first.Count != 1 {
		t.Fatalf("first count = %d, want 1", first.Count)
	}
	if ttl := mr.TTL("rl:cnt:login:alice"); ttl <= 0 {
		t.Fatalf("counter key must carry the window TTL from the first hit, got %v", ttl)
	}

	for i := 2; i <= 4; i++ {
		c, err := store.Increment(ctx, "login", "alice", time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if c.Count != i {
			t.Fatalf("count = %d, want %d", c.Count, i)
		}
		if !c.WindowStart.Equal(first.WindowStart) {
			t.Fatalf("window start moved within the window: %v vs %v", c.WindowStart, first.WindowStart)
		}
	}
}

func TestRedisIncrement_WindowElapsesAndResets(t *testing.T) {
	mr, store := newRedisStore(t)
	ctx := context.Background()
	window := time.Second

	for i := 1; i <= 3; i++ {
		c, err := store.Increment(ctx, "login", "alice", window)
		if err != nil {
			t.Fatal(err)
		}
		if c.Count != i {
			t.Fatalf("count = %d, want %d", c.Count, i)
		}
	}

	mr.FastForward(2 * window)

	c, err := store.Increment(ctx, "login", "alice", window)
	if err != nil {
		t.Fatal(err)
	}
	if c.Count != 1 {
		t.Fatalf("count = %d, want 1 after the window elapsed", c.Count)
	}
	if ttl := mr.TTL("rl:cnt:login:alice"); ttl <= 0 {
		t.Fatalf("fresh window must re-arm the TTL, got %v", ttl)
	}
}

func TestRedisIncrement_RestartsCounterMissingExpiry(t *testing.T) {
	mr, store := newRedisStore(t)
	ctx := context.Background()

	// A counter whose expiry was lost (half-applied first hit) cannot be
	// dated and must restart instead of climbing forever.
	if err := mr.Set("rl:cnt:login:alice", "6"); err != nil {
		t.Fatal(err)
	}

	c, err := store.Increment(ctx, "login", "alice", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if c.Count != 1 {
		t.Fatalf("count = %d, want 1 for an undatable counter", c.Count)
	}
	if ttl := mr.TTL("rl:cnt:login:alice"); ttl <= 0 {
		t.Fatalf("restarted counter must carry a TTL, got %v", ttl)
	}
}
