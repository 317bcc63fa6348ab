package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/wayfinder-app/wayfinder/internal/repository"
	"github.com/wayfinder-app/wayfinder/internal/token"
	"github.com/wayfinder-app/wayfinder/internal/validation"
)

// UseRecoveryCode signs a locked-out user in with a one-time recovery
// code instead of the TOTP second factor. The code is burned on success;
// the submitted password is not involved, matching the account-recovery
// contract where the authenticator device is gone but the code printout
// survives.
func (e *Engine) UseRecoveryCode(ctx context.Context, email, code string) (token.Pair, error) {
	code = strings.TrimSpace(code)
	if validation.RecoveryCode(code) != nil {
		return token.Pair{}, ErrRecoveryCodeInvalid
	}

	user, err := e.store.UserByEmailHash(ctx, repository.LookupHash(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return token.Pair{}, ErrUserNotFound
		}
		return token.Pair{}, ErrBackendUnavailable
	}

	if err := e.store.ConsumeCode(ctx, user.ID, HashRecoveryCode(code)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			e.emitAudit(ctx, auditRecoveryFailed, user.ID, "", false, ErrRecoveryCodeInvalid, nil)
			return token.Pair{}, ErrRecoveryCodeInvalid
		}
		return token.Pair{}, ErrBackendUnavailable
	}

	pair, err := e.issueSession(ctx, user)
	if err != nil {
		return token.Pair{}, err
	}
	if err := e.store.ResetLoginFailures(ctx, user.ID); err != nil {
		e.log.Warn().Err(err).Msg("resetting login failure counter")
	}

	e.emitAudit(ctx, auditRecoveryUsed, user.ID, "", true, nil, nil)
	return pair, nil
}
