package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestFullAccountJourney walks one account through the whole lifecycle:
// registration, plain login, 2FA enrolment, the two-phase OTP login,
// recovery-code rescue and finally disabling the second factor again.
func TestFullAccountJourney(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()
	const email = "journey@example.com"

	user := h.register(t, email)

	// Plain login before any second factor.
	res, err := h.engine.Login(ctx, LoginRequest{Email: email, Password: testPassword, IP: "203.0.113.100"})
	if err != nil || res.OTPRequired {
		t.Fatalf("plain login: res=%+v err=%v", res, err)
	}

	// Enrol and enable TOTP.
	if _, err := h.engine.SetupTOTP(ctx, user.ID); err != nil {
		t.Fatalf("SetupTOTP failed: %v", err)
	}
	device, _ := h.store.Device(ctx, user.ID, false)
	recoveryCodes, err := h.engine.VerifyTOTP(ctx, user.ID, codeFor(t, device.Secret, time.Now()), TOTPEnable)
	if err != nil {
		t.Fatalf("enable failed: %v", err)
	}

	// Login now needs two trips.
	res, err = h.engine.Login(ctx, LoginRequest{Email: email, Password: testPassword, IP: "203.0.113.101"})
	if err != nil || !res.OTPRequired {
		t.Fatalf("expected OTP challenge, res=%+v err=%v", res, err)
	}
	res, err = h.engine.Login(ctx, LoginRequest{
		Email: email, Password: testPassword, IP: "203.0.113.101",
		OTP: codeFor(t, device.Secret, time.Now()),
	})
	if err != nil || res.Tokens.Access == "" {
		t.Fatalf("OTP login: res=%+v err=%v", res, err)
	}

	// Authenticator lost: a recovery code still gets the user in.
	pair, err := h.engine.UseRecoveryCode(ctx, email, recoveryCodes[0])
	if err != nil || pair.Access == "" {
		t.Fatalf("recovery: pair=%+v err=%v", pair, err)
	}

	// Turn the second factor off and confirm login is single-trip again.
	if err := h.engine.DisableTOTP(ctx, user.ID); err != nil {
		t.Fatalf("DisableTOTP failed: %v", err)
	}
	res, err = h.engine.Login(ctx, LoginRequest{Email: email, Password: testPassword, IP: "203.0.113.102"})
	if err != nil || res.OTPRequired {
		t.Fatalf("post-disable login: res=%+v err=%v", res, err)
	}

	// The old recovery batch died with the second factor.
	if _, err := h.engine.UseRecoveryCode(ctx, email, recoveryCodes[1]); !errors.Is(err, ErrRecoveryCodeInvalid) {
		t.Fatalf("stale recovery code: got %v", err)
	}
}
