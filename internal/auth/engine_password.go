package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wayfinder-app/wayfinder/internal/cache"
	"github.com/wayfinder-app/wayfinder/internal/mail"
	"github.com/wayfinder-app/wayfinder/internal/repository"
	"github.com/wayfinder-app/wayfinder/internal/validation"
)

const resetMaxVerifyAttempts = 5

// ChangePassword swaps the password of an authenticated user after
// re-verifying the current one.
func (e *Engine) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return ErrBackendUnavailable
	}

	ok, err := e.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, auditPasswordChange, userID, "", false, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}
	if err := e.cfg.PasswordPolicy.Password(newPassword); err != nil {
		return validation.Errors{"password": err.Error()}
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return ErrBackendUnavailable
	}
	if err := e.store.UpdatePassword(ctx, userID, hash); err != nil {
		return ErrBackendUnavailable
	}

	e.emitAudit(ctx, auditPasswordChange, userID, "", true, nil, nil)
	return nil
}

// ForgottenPassword issues a reset token for a known account and emails
// the reset link. Unknown accounts are reported as such; this surface has
// always confirmed account existence and clients depend on the 404.
func (e *Engine) ForgottenPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := validation.Email(email); err != nil {
		return validation.Errors{"email": err.Error()}
	}

	user, err := e.store.UserByEmailHash(ctx, repository.LookupHash(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return ErrBackendUnavailable
	}

	recordID, resetToken, secretHash, err := cache.NewResetToken()
	if err != nil {
		return ErrBackendUnavailable
	}
	record := &cache.ResetRecord{
		UserID:     user.ID.String(),
		SecretHash: secretHash,
		ExpiresAt:  e.now().Add(e.cfg.ResetTokenTTL).Unix(),
	}
	if err := e.resets.Save(ctx, recordID, record, e.cfg.ResetTokenTTL); err != nil {
		return ErrBackendUnavailable
	}

	link := resetToken
	if e.cfg.ResetURLBase != "" {
		link = strings.TrimRight(e.cfg.ResetURLBase, "/") + "/" + resetToken
	}
	e.sendMail(mail.Message{
		To:      user.Email,
		Subject: "Reset your WayFinder password",
		Body: "Hi " + user.Username + ",\n\n" +
			"Use the link below to choose a new password. It expires in " +
			formatTTL(e.cfg.ResetTokenTTL) + " and works once.\n\n" + link + "\n",
	})
	e.emitAudit(ctx, auditPasswordForgot, user.ID, "", true, nil, nil)
	return nil
}

// ResetPassword redeems a reset token and installs the new password. The
// token is single-use regardless of outcome once redeemed.
func (e *Engine) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if err := e.cfg.PasswordPolicy.Password(newPassword); err != nil {
		return validation.Errors{"password": err.Error()}
	}

	recordID, secretHash, err := cache.DecodeResetToken(resetToken)
	if err != nil {
		return ErrResetTokenInvalid
	}
	record, err := e.resets.Consume(ctx, recordID, secretHash, resetMaxVerifyAttempts)
	if err != nil {
		switch {
		case errors.Is(err, cache.ErrResetNotFound),
			errors.Is(err, cache.ErrResetSecretMismatch),
			errors.Is(err, cache.ErrResetAttemptsExceeded):
			e.emitAudit(ctx, auditPasswordReset, uuid.Nil, "", false, ErrResetTokenInvalid, nil)
			return ErrResetTokenInvalid
		default:
			return ErrBackendUnavailable
		}
	}

	userID, err := uuid.Parse(record.UserID)
	if err != nil {
		return ErrResetTokenInvalid
	}
	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return ErrBackendUnavailable
	}
	if err := e.store.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return ErrBackendUnavailable
	}
	if err := e.store.ResetLoginFailures(ctx, userID); err != nil {
		e.log.Warn().Err(err).Msg("resetting login failure counter")
	}

	e.emitAudit(ctx, auditPasswordReset, userID, "", true, nil, nil)
	return nil
}

func formatTTL(d time.Duration) string {
	if d >= time.Hour {
		return d.Round(time.Hour).String()
	}
	return d.Round(time.Minute).String()
}
