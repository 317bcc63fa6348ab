// Package auth implements the account and second-factor engine: login
// with the two-phase OTP handshake, registration, password lifecycle,
// TOTP device management and recovery codes. It owns the security policy;
// HTTP handlers only translate its sentinel errors into status codes.
package auth

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wayfinder-app/wayfinder/internal/audit"
	"github.com/wayfinder-app/wayfinder/internal/cache"
	"github.com/wayfinder-app/wayfinder/internal/mail"
	"github.com/wayfinder-app/wayfinder/internal/password"
	"github.com/wayfinder-app/wayfinder/internal/rate"
	"github.com/wayfinder-app/wayfinder/internal/repository"
	"github.com/wayfinder-app/wayfinder/internal/token"
	"github.com/wayfinder-app/wayfinder/internal/validation"
)

// Config is the engine policy. Everything is explicit; there is no
// package-level state and no environment access in this package.
type Config struct {
	// TOTPIssuer is the label authenticator apps display.
	TOTPIssuer string
	// PasswordPolicy applies at registration, change and reset.
	PasswordPolicy validation.PasswordPolicy
	// LockoutThreshold is the long-window per-account failure ceiling.
	LockoutThreshold int
	// LockoutWindow is how long failures count toward the threshold.
	LockoutWindow time.Duration
	// ResetTokenTTL bounds the password reset token lifetime.
	ResetTokenTTL time.Duration
	// ResetURLBase is the frontend URL the reset email links to.
	ResetURLBase string
	// RecoveryCodeCount is the batch size issued on 2FA enable.
	RecoveryCodeCount int

	Logger zerolog.Logger
}

// DefaultConfig mirrors the production policy.
func DefaultConfig() Config {
	return Config{
		TOTPIssuer:        "WayFinder",
		PasswordPolicy:    validation.DefaultPasswordPolicy(),
		LockoutThreshold:  10,
		LockoutWindow:     time.Hour,
		ResetTokenTTL:     30 * time.Minute,
		RecoveryCodeCount: recoveryBatchSize,
	}
}

// Deps are the engine's collaborators, all required except Audit.
type Deps struct {
	Store   repository.Store
	Limiter *rate.Limiter
	Resets  *cache.ResetStore
	Hasher  *password.Hasher
	Tokens  *token.Issuer
	Mailer  mail.Sender
	Audit   *audit.Dispatcher
}

// Engine is the authentication orchestrator. Safe for concurrent use.
type Engine struct {
	cfg     Config
	store   repository.Store
	limiter *rate.Limiter
	resets  *cache.ResetStore
	hasher  *password.Hasher
	tokens  *token.Issuer
	totp    *TOTPManager
	mailer  mail.Sender
	audit   *audit.Dispatcher
	log     zerolog.Logger

	now func() time.Time
}

// NewEngine validates the wiring and applies config defaults.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("auth: store is required")
	case deps.Limiter == nil:
		return nil, fmt.Errorf("auth: rate limiter is required")
	case deps.Resets == nil:
		return nil, fmt.Errorf("auth: reset store is required")
	case deps.Hasher == nil:
		return nil, fmt.Errorf("auth: password hasher is required")
	case deps.Tokens == nil:
		return nil, fmt.Errorf("auth: token issuer is required")
	case deps.Mailer == nil:
		return nil, fmt.Errorf("auth: mail sender is required")
	}

	if cfg.LockoutThreshold <= 0 {
		cfg.LockoutThreshold = 10
	}
	if cfg.LockoutWindow <= 0 {
		cfg.LockoutWindow = time.Hour
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = 30 * time.Minute
	}
	if cfg.RecoveryCodeCount <= 0 {
		cfg.RecoveryCodeCount = recoveryBatchSize
	}
	if cfg.PasswordPolicy.MinLength <= 0 {
		cfg.PasswordPolicy = validation.DefaultPasswordPolicy()
	}

	return &Engine{
		cfg:     cfg,
		store:   deps.Store,
		limiter: deps.Limiter,
		resets:  deps.Resets,
		hasher:  deps.Hasher,
		tokens:  deps.Tokens,
		totp:    NewTOTPManager(cfg.TOTPIssuer),
		mailer:  deps.Mailer,
		audit:   deps.Audit,
		log:     cfg.Logger,
		now:     time.Now,
	}, nil
}
