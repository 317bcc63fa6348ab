package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testResetStore(t *testing.T) (*ResetStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewResetStore(client), mr
}

func issue(t *testing.T, store *ResetStore, userID string, ttl time.Duration) (string, string) {
	t.Helper()
	recordID, token, secretHash, err := NewResetToken()
	if err != nil {
		t.Fatalf("NewResetToken failed: %v", err)
	}
	record := &ResetRecord{
		UserID:     userID,
		SecretHash: secretHash,
		ExpiresAt:  time.Now().Add(ttl).Unix(),
	}
	if err := store.Save(context.Background(), recordID, record, ttl); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return recordID, token
}

func TestResetTokenRoundTrip(t *testing.T) {
	store, _ := testResetStore(t)
	_, token := issue(t, store, "user-1", 30*time.Minute)

	recordID, secretHash, err := DecodeResetToken(token)
	if err != nil {
		t.Fatalf("DecodeResetToken failed: %v", err)
	}

	record, err := store.Consume(context.Background(), recordID, secretHash, 5)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if record.UserID != "user-1" {
		t.Fatalf("expected user-1, got %s", record.UserID)
	}
}

func TestResetTokenSingleUse(t *testing.T) {
	store, _ := testResetStore(t)
	_, token := issue(t, store, "user-1", 30*time.Minute)

	recordID, secretHash, err := DecodeResetToken(token)
	if err != nil {
		t.Fatalf("DecodeResetToken failed: %v", err)
	}

	if _, err := store.Consume(context.Background(), recordID, secretHash, 5); err != nil {
		t.Fatalf("first consume failed: %v", err)
	}
	if _, err := store.Consume(context.Background(), recordID, secretHash, 5); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("expected ErrResetNotFound on replay, got %v", err)
	}
}

func TestResetTokenWrongSecret(t *testing.T) {
	store, _ := testResetStore(t)
	recordID, _ := issue(t, store, "user-1", 30*time.Minute)

	var bogus [32]byte
	if _, err := store.Consume(context.Background(), recordID, bogus, 5); !errors.Is(err, ErrResetSecretMismatch) {
		t.Fatalf("expected secret mismatch, got %v", err)
	}
}

func TestResetTokenAttemptsExceeded(t *testing.T) {
	store, _ := testResetStore(t)
	recordID, token := issue(t, store, "user-1", 30*time.Minute)

	var bogus [32]byte
	var last error
	for i := 0; i < 5; i++ {
		_, last = store.Consume(context.Background(), recordID, bogus, 5)
	}
	if !errors.Is(last, ErrResetAttemptsExceeded) {
		t.Fatalf("expected attempts exceeded, got %v", last)
	}

	// Record is destroyed with the budget, even for the right secret.
	id, hash, err := DecodeResetToken(token)
	if err != nil {
		t.Fatalf("DecodeResetToken failed: %v", err)
	}
	if _, err := store.Consume(context.Background(), id, hash, 5); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("expected ErrResetNotFound after destruction, got %v", err)
	}
}

func TestResetTokenExpiry(t *testing.T) {
	store, mr := testResetStore(t)
	_, token := issue(t, store, "user-1", time.Minute)

	mr.FastForward(2 * time.Minute)

	recordID, secretHash, err := DecodeResetToken(token)
	if err != nil {
		t.Fatalf("DecodeResetToken failed: %v", err)
	}
	if _, err := store.Consume(context.Background(), recordID, secretHash, 5); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("expected expiry to read as not found, got %v", err)
	}
}

func TestDecodeResetTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{"", "short", "!!!!", "YWJjZA"} {
		if _, _, err := DecodeResetToken(token); err == nil {
			t.Fatalf("expected error decoding %q", token)
		}
	}
}
