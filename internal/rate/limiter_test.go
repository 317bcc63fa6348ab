package rate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, cfg), mr
}

func TestKeyScopedToIPAndEmail(t *testing.T) {
	a := Key("10.0.0.1", "alice@example.com")
	b := Key("10.0.0.2", "alice@example.com")
	c := Key("10.0.0.1", "bob@example.com")
	if a == b || a == c {
		t.Fatal("expected distinct keys per (ip, email) pair")
	}
	if Key("10.0.0.1", " Alice@Example.COM ") != a {
		t.Fatal("expected email normalization before hashing")
	}
	if strings.Contains(a, "alice") {
		t.Fatal("raw email must not appear in the key")
	}
}

func TestSixthAttemptThrottled(t *testing.T) {
	limiter, _ := testLimiter(t, Config{MaxAttempts: 5, Window: time.Minute})
	key := Key("127.0.0.1", "test@example.com")

	for i := 0; i < 5; i++ {
		if err := limiter.CheckAndIncrement(context.Background(), key); err != nil {
			t.Fatalf("attempt %d unexpectedly limited: %v", i+1, err)
		}
	}
	if err := limiter.CheckAndIncrement(context.Background(), key); !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled on sixth attempt, got %v", err)
	}
}

func TestWindowExpiryAllowsAgain(t *testing.T) {
	limiter, mr := testLimiter(t, Config{MaxAttempts: 5, Window: time.Minute})
	key := Key("127.0.0.1", "test@example.com")

	for i := 0; i < 6; i++ {
		_ = limiter.CheckAndIncrement(context.Background(), key)
	}
	mr.FastForward(61 * time.Second)

	if err := limiter.CheckAndIncrement(context.Background(), key); err != nil {
		t.Fatalf("expected allowance after window elapsed, got %v", err)
	}
}

func TestResetClearsCounterImmediately(t *testing.T) {
	limiter, _ := testLimiter(t, Config{MaxAttempts: 5, Window: time.Minute})
	key := Key("127.0.0.1", "test@example.com")

	for i := 0; i < 4; i++ {
		_ = limiter.CheckAndIncrement(context.Background(), key)
	}
	if err := limiter.Reset(context.Background(), key); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	n, err := limiter.Attempts(context.Background(), key)
	if err != nil {
		t.Fatalf("Attempts failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected zero attempts after reset, got %d", n)
	}
}

func TestConcurrentIncrementsDoNotUndercount(t *testing.T) {
	limiter, _ := testLimiter(t, Config{MaxAttempts: 100, Window: time.Minute})
	key := Key("127.0.0.1", "test@example.com")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = limiter.CheckAndIncrement(context.Background(), key)
		}()
	}
	wg.Wait()

	n, err := limiter.Attempts(context.Background(), key)
	if err != nil {
		t.Fatalf("Attempts failed: %v", err)
	}
	if n != 50 {
		t.Fatalf("expected 50 recorded attempts, got %d", n)
	}
}

func TestDistinctKeysDoNotInterfere(t *testing.T) {
	limiter, _ := testLimiter(t, Config{MaxAttempts: 5, Window: time.Minute})
	victim := Key("10.0.0.1", "victim@example.com")
	other := Key("10.0.0.9", "victim@example.com")

	for i := 0; i < 6; i++ {
		_ = limiter.CheckAndIncrement(context.Background(), victim)
	}
	if err := limiter.CheckAndIncrement(context.Background(), other); err != nil {
		t.Fatalf("different IP should have its own budget, got %v", err)
	}
}
