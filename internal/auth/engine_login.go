package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/wayfinder-app/wayfinder/internal/rate"
	"github.com/wayfinder-app/wayfinder/internal/repository"
	"github.com/wayfinder-app/wayfinder/internal/token"
	"github.com/wayfinder-app/wayfinder/internal/validation"
)

// LoginRequest carries one login round trip. OTP is empty on the first
// trip; a client with 2FA enabled resubmits the same credentials with the
// code filled in.
type LoginRequest struct {
	Email    string
	Password string
	OTP      string
	IP       string
}

// LoginResult is either a full token pair or the instruction to resubmit
// with a one-time code.
type LoginResult struct {
	OTPRequired bool
	Tokens      token.Pair
}

// Login runs the credential check, both throttle windows and the optional
// second factor.
//
// Ordering is deliberate: malformed input is rejected before any store
// access or counter moves, the short-window counter is bumped before the
// account lookup so unknown-account probing burns attempts too, and the
// lockout check runs before password verification so a locked account
// leaks nothing about the password submitted.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := strings.TrimSpace(req.Email)
	if req.Password == "" || validation.Email(email) != nil {
		return nil, ErrInvalidCredentials
	}

	limiterKey := rate.Key(req.IP, email)
	if err := e.limiter.CheckAndIncrement(ctx, limiterKey); err != nil {
		if errors.Is(err, rate.ErrThrottled) {
			e.emitAudit(ctx, auditLoginThrottled, uuid.Nil, req.IP, false, ErrThrottled, map[string]string{"email": email})
			return nil, ErrThrottled
		}
		return nil, ErrBackendUnavailable
	}

	user, err := e.store.UserByEmailHash(ctx, repository.LookupHash(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			e.emitAudit(ctx, auditLoginFailure, uuid.Nil, req.IP, false, ErrInvalidCredentials, map[string]string{"reason": "unknown_account"})
			return nil, ErrInvalidCredentials
		}
		return nil, ErrBackendUnavailable
	}

	if e.lockedOut(user) {
		e.emitAudit(ctx, auditLoginLocked, user.ID, req.IP, false, ErrLockedOut, nil)
		return nil, ErrLockedOut
	}

	ok, err := e.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil || !ok {
		if _, recErr := e.store.RecordLoginFailure(ctx, user.ID, e.now(), e.cfg.LockoutWindow); recErr != nil {
			e.log.Warn().Err(recErr).Msg("recording login failure")
		}
		e.emitAudit(ctx, auditLoginFailure, user.ID, req.IP, false, ErrInvalidCredentials, map[string]string{"reason": "password_mismatch"})
		return nil, ErrInvalidCredentials
	}

	if user.TwoFAEnabled {
		device, err := e.store.Device(ctx, user.ID, true)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBackendUnavailable
		}
		// A user flagged 2FA-enabled without a confirmed device falls
		// back to password-only login rather than being locked out.
		if err == nil {
			if validation.OTP(req.OTP, 6) != nil {
				e.emitAudit(ctx, auditOTPRequired, user.ID, req.IP, true, nil, nil)
				return &LoginResult{OTPRequired: true}, nil
			}
			// OTP failures count only against the short window. The
			// persistent counter tracks password failures, and a wrong
			// code after a correct password is not the same signal.
			if !e.totp.Verify(device.Secret, strings.TrimSpace(req.OTP), e.now()) {
				e.emitAudit(ctx, auditOTPFailure, user.ID, req.IP, false, ErrOTPInvalid, nil)
				return nil, ErrOTPInvalid
			}
		}
	}

	pair, err := e.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := e.limiter.Reset(ctx, limiterKey); err != nil {
		e.log.Warn().Err(err).Msg("resetting login limiter")
	}
	if err := e.store.ResetLoginFailures(ctx, user.ID); err != nil {
		e.log.Warn().Err(err).Msg("resetting login failure counter")
	}

	e.emitAudit(ctx, auditLoginSuccess, user.ID, req.IP, true, nil, nil)
	return &LoginResult{Tokens: pair}, nil
}

// Logout revokes the session behind the submitted refresh token. Invalid
// tokens are treated as already logged out.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	claims, err := e.tokens.RefreshClaims(refreshToken)
	if err != nil {
		return nil
	}
	if err := e.store.RevokeSession(ctx, claims.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return ErrBackendUnavailable
	}
	userID, _ := e.tokens.ValidateRefresh(refreshToken)
	e.emitAudit(ctx, auditLogout, userID, "", true, nil, nil)
	return nil
}

// Refresh exchanges a live refresh token for a fresh pair. The submitted
// token's session must still be unrevoked; it is revoked as part of the
// exchange, so each refresh token is good for exactly one rotation.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	claims, err := e.tokens.RefreshClaims(refreshToken)
	if err != nil {
		return token.Pair{}, ErrSessionInvalid
	}
	live, err := e.store.SessionValid(ctx, claims.ID)
	if err != nil {
		return token.Pair{}, ErrBackendUnavailable
	}
	if !live {
		return token.Pair{}, ErrSessionInvalid
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return token.Pair{}, ErrSessionInvalid
	}
	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return token.Pair{}, ErrSessionInvalid
		}
		return token.Pair{}, ErrBackendUnavailable
	}

	pair, err := e.issueSession(ctx, user)
	if err != nil {
		return token.Pair{}, err
	}
	if err := e.store.RevokeSession(ctx, claims.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		e.log.Warn().Err(err).Msg("revoking rotated session")
	}

	e.emitAudit(ctx, auditTokenRefresh, user.ID, "", true, nil, nil)
	return pair, nil
}
