// Package rate enforces the short-window login throttle backed by redis
// counters. Keys are derived from the (client IP, target email) pair so the
// budget is scoped to a single attacker/victim combination rather than
// being global per IP.
package rate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrThrottled reports that the attempt budget for the key is spent.
	ErrThrottled = errors.New("rate limited")
	// ErrBackendUnavailable wraps redis transport failures.
	ErrBackendUnavailable = errors.New("rate limiter backend unavailable")
)

const keyPrefix = "login_attempt"

// Config holds the limiter ceiling and window.
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultConfig matches the login policy: 5 attempts per 60 seconds.
func DefaultConfig() Config {
	return Config{MaxAttempts: 5, Window: time.Minute}
}

// Limiter is a fixed-window counter limiter on a redis backend.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	return &Limiter{redis: redisClient, config: cfg}
}

// Key derives the counter key for a client IP and target email. The hash
// is not a secret; it only keeps raw identities out of the cache keyspace.
func Key(ip, email string) string {
	sum := sha256.Sum256([]byte(ip + strings.ToLower(strings.TrimSpace(email))))
	return keyPrefix + ":" + hex.EncodeToString(sum[:])
}

// CheckAndIncrement atomically records an attempt for key and reports
// whether the caller may proceed. The window TTL is set on the first hit
// only, giving fixed-window semantics.
func (l *Limiter) CheckAndIncrement(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrThrottled
	}
	return nil
}

// Reset clears the counter for key. Called immediately after a successful
// authentication so a fresh login is never mistaken for abuse still inside
// the window.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Attempts returns the current counter for key. Missing keys read as zero.
func (l *Limiter) Attempts(ctx context.Context, key string) (int, error) {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return int(count), nil
}
