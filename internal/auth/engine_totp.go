package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/wayfinder-app/wayfinder/internal/mail"
	"github.com/wayfinder-app/wayfinder/internal/model"
	"github.com/wayfinder-app/wayfinder/internal/repository"
	"github.com/wayfinder-app/wayfinder/internal/validation"
)

// SetupTOTP starts (or resumes) device enrolment and returns the
// provisioning URL for the authenticator app. A setup already in progress
// is resumed with the same secret, so refreshing the setup page does not
// invalidate a half-scanned QR code.
func (e *Engine) SetupTOTP(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", ErrBackendUnavailable
	}

	device, err := e.store.Device(ctx, userID, false)
	if err == nil {
		return e.totp.ProvisioningURL(device.Secret, user.Email), nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", ErrBackendUnavailable
	}

	secret, provisioningURL, err := e.totp.GenerateSecret(user.Email)
	if err != nil {
		return "", ErrBackendUnavailable
	}
	if err := e.store.CreateDevice(ctx, &model.TOTPDevice{
		UserID: userID,
		Secret: secret,
	}); err != nil {
		return "", ErrBackendUnavailable
	}
	return provisioningURL, nil
}

// VerifyTOTPAction is what a verified code should do.
type VerifyTOTPAction string

const (
	// TOTPEnable confirms the pending device and turns 2FA on.
	TOTPEnable VerifyTOTPAction = "enable"
	// TOTPDisable turns 2FA off after proving possession of the device.
	TOTPDisable VerifyTOTPAction = "disable"
)

// VerifyTOTP checks a code against the device in the state the action
// needs and applies the transition. Enabling returns the plaintext
// recovery batch; this is the only time it is ever visible.
func (e *Engine) VerifyTOTP(ctx context.Context, userID uuid.UUID, code string, action VerifyTOTPAction) ([]string, error) {
	if err := validation.OTP(code, 6); err != nil {
		return nil, ErrOTPInvalid
	}
	code = strings.TrimSpace(code)

	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, ErrBackendUnavailable
	}

	switch action {
	case TOTPEnable:
		return e.enableTOTP(ctx, user, code)
	case TOTPDisable:
		if !user.TwoFAEnabled {
			return nil, ErrTwoFANotEnabled
		}
		device, err := e.confirmedDevice(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !e.totp.Verify(device.Secret, code, e.now()) {
			e.emitAudit(ctx, auditOTPFailure, userID, "", false, ErrOTPInvalid, map[string]string{"action": "disable"})
			return nil, ErrOTPInvalid
		}
		return nil, e.disableTOTP(ctx, user)
	default:
		return nil, ErrOTPInvalid
	}
}

func (e *Engine) enableTOTP(ctx context.Context, user *model.User, code string) ([]string, error) {
	device, err := e.store.Device(ctx, user.ID, false)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, ErrBackendUnavailable
	}
	if !e.totp.Verify(device.Secret, code, e.now()) {
		e.emitAudit(ctx, auditOTPFailure, user.ID, "", false, ErrOTPInvalid, map[string]string{"action": "enable"})
		return nil, ErrOTPInvalid
	}

	if err := e.store.ConfirmDevice(ctx, device.ID); err != nil {
		return nil, ErrBackendUnavailable
	}
	if err := e.store.SetTwoFAEnabled(ctx, user.ID, true); err != nil {
		return nil, ErrBackendUnavailable
	}

	codes, err := GenerateRecoveryCodes(e.cfg.RecoveryCodeCount)
	if err != nil {
		return nil, ErrBackendUnavailable
	}
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = HashRecoveryCode(c)
	}
	if err := e.store.ReplaceCodes(ctx, user.ID, hashes); err != nil {
		return nil, ErrBackendUnavailable
	}

	e.sendMail(mail.Message{
		To:      user.Email,
		Subject: "Two-factor authentication enabled",
		Body: "Hi " + user.Username + ",\n\n" +
			"Two-factor authentication is now active on your WayFinder account.\n" +
			"If this wasn't you, reset your password immediately.\n",
	})
	e.emitAudit(ctx, auditTOTPEnabled, user.ID, "", true, nil, nil)
	return codes, nil
}

// DisableTOTP turns 2FA off for an already authenticated user without a
// code. Returns ErrTwoFANotEnabled when there is nothing to disable.
func (e *Engine) DisableTOTP(ctx context.Context, userID uuid.UUID) error {
	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return ErrBackendUnavailable
	}
	if !user.TwoFAEnabled {
		return ErrTwoFANotEnabled
	}
	if _, err := e.confirmedDevice(ctx, userID); err != nil {
		return err
	}
	return e.disableTOTP(ctx, user)
}

func (e *Engine) disableTOTP(ctx context.Context, user *model.User) error {
	if err := e.store.DeleteDevices(ctx, user.ID); err != nil {
		return ErrBackendUnavailable
	}
	if err := e.store.DeleteCodes(ctx, user.ID); err != nil {
		return ErrBackendUnavailable
	}
	if err := e.store.SetTwoFAEnabled(ctx, user.ID, false); err != nil {
		return ErrBackendUnavailable
	}
	e.emitAudit(ctx, auditTOTPDisabled, user.ID, "", true, nil, nil)
	return nil
}

func (e *Engine) confirmedDevice(ctx context.Context, userID uuid.UUID) (*model.TOTPDevice, error) {
	device, err := e.store.Device(ctx, userID, true)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, ErrBackendUnavailable
	}
	return device, nil
}
