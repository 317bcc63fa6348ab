package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wayfinder-app/wayfinder/internal/validation"
)

func TestChangePassword(t *testing.T) {
	h := newTestEngine(t)
	user := h.register(t, "change@example.com")
	ctx := context.Background()
	const newPassword = "fresh-horse-42"

	if err := h.engine.ChangePassword(ctx, user.ID, "not-the-password", newPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong old password: got %v", err)
	}

	err := h.engine.ChangePassword(ctx, user.ID, testPassword, "weak")
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		t.Fatalf("weak new password: expected validation.Errors, got %v", err)
	}

	if err := h.engine.ChangePassword(ctx, user.ID, testPassword, newPassword); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if _, err := h.engine.Login(ctx, LoginRequest{
		Email: "change@example.com", Password: testPassword, IP: "203.0.113.80",
	}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("old password must stop working")
	}
	if _, err := h.engine.Login(ctx, LoginRequest{
		Email: "change@example.com", Password: newPassword, IP: "203.0.113.81",
	}); err != nil {
		t.Fatalf("new password must work, got %v", err)
	}
}

// extractResetToken pulls the opaque token out of the reset email body.
func extractResetToken(t *testing.T, body string) string {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(body), "\n")
	link := lines[len(lines)-1]
	parts := strings.Split(strings.TrimSpace(link), "/")
	return parts[len(parts)-1]
}

func TestForgottenPasswordFlow(t *testing.T) {
	h := newTestEngine(t)
	h.register(t, "forgot@example.com")
	ctx := context.Background()
	const newPassword = "recovered-pw-9"

	if err := h.engine.ForgottenPassword(ctx, "stranger@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown account: got %v, want ErrUserNotFound", err)
	}
	var fieldErrs validation.Errors
	if err := h.engine.ForgottenPassword(ctx, "not-an-email"); !errors.As(err, &fieldErrs) {
		t.Fatalf("malformed email: expected validation.Errors, got %v", err)
	}

	if err := h.engine.ForgottenPassword(ctx, "forgot@example.com"); err != nil {
		t.Fatalf("ForgottenPassword failed: %v", err)
	}
	msg := h.mail.waitFor(t, "Reset your WayFinder password")
	resetToken := extractResetToken(t, msg.Body)

	if err := h.engine.ResetPassword(ctx, resetToken, "weak"); !errors.As(err, &fieldErrs) {
		t.Fatalf("weak password at reset: expected validation.Errors, got %v", err)
	}
	if err := h.engine.ResetPassword(ctx, resetToken, newPassword); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	// Single use: the same token must not reset twice.
	if err := h.engine.ResetPassword(ctx, resetToken, "another-pw-77"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("replayed token: got %v, want ErrResetTokenInvalid", err)
	}

	if _, err := h.engine.Login(ctx, LoginRequest{
		Email: "forgot@example.com", Password: newPassword, IP: "203.0.113.90",
	}); err != nil {
		t.Fatalf("login with reset password failed: %v", err)
	}
}

func TestResetPasswordRejectsForgedAndExpiredTokens(t *testing.T) {
	h := newTestEngine(t)
	h.register(t, "expire@example.com")
	ctx := context.Background()

	if err := h.engine.ResetPassword(ctx, "forged-token", "valid-pw-123"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("forged token: got %v", err)
	}

	if err := h.engine.ForgottenPassword(ctx, "expire@example.com"); err != nil {
		t.Fatalf("ForgottenPassword failed: %v", err)
	}
	msg := h.mail.waitFor(t, "Reset your WayFinder password")
	resetToken := extractResetToken(t, msg.Body)

	// Past the TTL the redis record is gone.
	h.redis.FastForward(31 * time.Minute)
	if err := h.engine.ResetPassword(ctx, resetToken, "valid-pw-123"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expired token: got %v, want ErrResetTokenInvalid", err)
	}
}
