package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/wayfinder-app/wayfinder/internal/model"
)

// codeFor generates the authenticator-side code for a device secret.
func codeFor(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period: totpPeriod, Skew: totpSkew, Digits: totpDigits, Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("generating code: %v", err)
	}
	return code
}

// enableConfirmedDevice wires a confirmed device directly into the store,
// for tests that start past the enrolment flow.
func (h *testHarness) enableConfirmedDevice(t *testing.T, user *model.User) string {
	t.Helper()
	ctx := context.Background()
	const secret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
	if err := h.store.CreateDevice(ctx, &model.TOTPDevice{
		UserID: user.ID, Secret: secret, Confirmed: true,
	}); err != nil {
		t.Fatalf("CreateDevice failed: %v", err)
	}
	if err := h.store.SetTwoFAEnabled(ctx, user.ID, true); err != nil {
		t.Fatalf("SetTwoFAEnabled failed: %v", err)
	}
	return secret
}

func TestLoginPasswordOnly(t *testing.T) {
	h := newTestEngine(t)
	user := h.register(t, "plain@example.com")

	res, err := h.engine.Login(context.Background(), LoginRequest{
		Email: "plain@example.com", Password: testPassword, IP: "203.0.113.9",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.OTPRequired {
		t.Fatal("password-only account must not be asked for an OTP")
	}
	if res.Tokens.Access == "" || res.Tokens.Refresh == "" {
		t.Fatal("expected a full token pair")
	}
	_ = user
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := newTestEngine(t)
	h.register(t, "victim@example.com")
	ctx := context.Background()

	cases := []LoginRequest{
		{Email: "victim@example.com", Password: "wrong-password-1", IP: "198.51.100.1"},
		{Email: "nobody@example.com", Password: testPassword, IP: "198.51.100.1"},
		{Email: "victim@example.com", Password: "", IP: "198.51.100.1"},
		{Email: "", Password: testPassword, IP: "198.51.100.1"},
	}
	for _, req := range cases {
		if _, err := h.engine.Login(ctx, req); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Login(%q) = %v, want ErrInvalidCredentials", req.Email, err)
		}
	}
}

func TestLoginRejectsMalformedEmailBeforeCounters(t *testing.T) {
	h := newTestEngine(t)
	h.register(t, "shape@example.com")

	_, err := h.engine.Login(context.Background(), LoginRequest{
		Email: "not-an-email", Password: testPassword, IP: "198.51.100.30",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("malformed email: got %v, want ErrInvalidCredentials", err)
	}

	// Rejected before the limiter: no counter key may exist in redis.
	if keys := h.redis.Keys(); len(keys) != 0 {
		t.Fatalf("malformed input must not touch the limiter, found keys %v", keys)
	}
}

func TestLoginShortWindowThrottle(t *testing.T) {
	h := newTestEngine(t)
	h.register(t, "burst@example.com")
	ctx := context.Background()
	req := LoginRequest{Email: "burst@example.com", Password: "wrong", IP: "198.51.100.7"}

	for i := 0; i < 5; i++ {
		if _, err := h.engine.Login(ctx, req); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: got %v, want ErrInvalidCredentials", i+1, err)
		}
	}
	if _, err := h.engine.Login(ctx, req); !errors.Is(err, ErrThrottled) {
		t.Fatalf("6th attempt: got %v, want ErrThrottled", err)
	}

	// The correct password is throttled too; the window is per (ip, email).
	req.Password = testPassword
	if _, err := h.engine.Login(ctx, req); !errors.Is(err, ErrThrottled) {
		t.Fatalf("throttle must not yield to a correct password, got %v", err)
	}

	// Another address is unaffected.
	req.IP = "198.51.100.8"
	if _, err := h.engine.Login(ctx, req); err != nil {
		t.Fatalf("different IP must not be throttled, got %v", err)
	}
}

func TestLoginSuccessResetsShortWindow(t *testing.T) {
	h := newTestEngine(t)
	h.register(t, "reset@example.com")
	ctx := context.Background()
	ip := "198.51.100.20"

	for i := 0; i < 4; i++ {
		_, _ = h.engine.Login(ctx, LoginRequest{Email: "reset@example.com", Password: "wrong", IP: ip})
	}
	if _, err := h.engine.Login(ctx, LoginRequest{Email: "reset@example.com", Password: testPassword, IP: ip}); err != nil {
		t.Fatalf("5th attempt with correct password failed: %v", err)
	}

	// Counter restarted: four more failures fit before the ceiling again.
	for i := 0; i < 4; i++ {
		if _, err := h.engine.Login(ctx, LoginRequest{Email: "reset@example.com", Password: "wrong", IP: ip}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("post-reset attempt %d: got %v", i+1, err)
		}
	}
}

func TestLoginLongWindowLockout(t *testing.T) {
	h := newTestEngine(t)
	user := h.register(t, "locked@example.com")
	ctx := context.Background()

	// Rotate source addresses so only the per-account counter trips.
	for i := 0; i < 10; i++ {
		req := LoginRequest{
			Email: "locked@example.com", Password: "wrong",
			IP: fmt.Sprintf("10.0.0.%d", i),
		}
		if _, err := h.engine.Login(ctx, req); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("failure %d: got %v", i+1, err)
		}
	}

	_, err := h.engine.Login(ctx, LoginRequest{
		Email: "locked@example.com", Password: testPassword, IP: "10.0.1.1",
	})
	if !errors.Is(err, ErrLockedOut) {
		t.Fatalf("expected ErrLockedOut after 10 failures, got %v", err)
	}

	// Lockout lapses once the window has passed.
	h.engine.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	got, _ := h.store.UserByID(ctx, user.ID)
	if got.FailedAttempts < 10 {
		t.Fatalf("expected persisted failure count, got %d", got.FailedAttempts)
	}
	if _, err := h.engine.Login(ctx, LoginRequest{
		Email: "locked@example.com", Password: testPassword, IP: "10.0.1.2",
	}); err != nil {
		t.Fatalf("login after window must succeed, got %v", err)
	}
}

func TestLoginTwoPhaseOTP(t *testing.T) {
	h := newTestEngine(t)
	user := h.register(t, "mfa@example.com")
	secret := h.enableConfirmedDevice(t, user)
	ctx := context.Background()
	base := LoginRequest{Email: "mfa@example.com", Password: testPassword, IP: "203.0.113.50"}

	// First trip: correct password, no code yet.
	res, err := h.engine.Login(ctx, base)
	if err != nil {
		t.Fatalf("first trip failed: %v", err)
	}
	if !res.OTPRequired {
		t.Fatal("expected OTPRequired on the first trip")
	}
	if res.Tokens.Access != "" {
		t.Fatal("no tokens may be issued before the second factor")
	}

	// Wrong code.
	bad := base
	bad.OTP = "000000"
	if code := codeFor(t, secret, time.Now()); code == "000000" {
		bad.OTP = "000001"
	}
	if _, err := h.engine.Login(ctx, bad); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("wrong code: got %v, want ErrOTPInvalid", err)
	}

	// Second trip with the real code.
	good := base
	good.OTP = codeFor(t, secret, time.Now())
	res, err = h.engine.Login(ctx, good)
	if err != nil {
		t.Fatalf("second trip failed: %v", err)
	}
	if res.OTPRequired || res.Tokens.Access == "" {
		t.Fatal("expected a full token pair after OTP verification")
	}
}

func TestOTPFailureDoesNotCountTowardLockout(t *testing.T) {
	h := newTestEngine(t)
	user := h.register(t, "otpmiss@example.com")
	secret := h.enableConfirmedDevice(t, user)
	ctx := context.Background()

	// Wrong codes over rotating addresses: the short window never trips,
	// and the per-account counter must stay untouched. A stolen password
	// alone must not be able to lock the owner out through OTP guesses.
	for i := 0; i < 12; i++ {
		bad := LoginRequest{
			Email: "otpmiss@example.com", Password: testPassword,
			IP: fmt.Sprintf("10.0.2.%d", i), OTP: "000000",
		}
		if code := codeFor(t, secret, time.Now()); code == "000000" {
			bad.OTP = "000001"
		}
		if _, err := h.engine.Login(ctx, bad); !errors.Is(err, ErrOTPInvalid) {
			t.Fatalf("attempt %d: got %v, want ErrOTPInvalid", i+1, err)
		}
	}

	got, _ := h.store.UserByID(ctx, user.ID)
	if got.FailedAttempts != 0 {
		t.Fatalf("OTP failures must not increment the lockout counter, got %d", got.FailedAttempts)
	}

	// The real code still works.
	req := LoginRequest{
		Email: "otpmiss@example.com", Password: testPassword,
		IP: "10.0.3.1", OTP: codeFor(t, secret, time.Now()),
	}
	if _, err := h.engine.Login(ctx, req); err != nil {
		t.Fatalf("login with the real code failed: %v", err)
	}
}

func TestLoginAcceptsNeighbouringStepCode(t *testing.T) {
	h := newTestEngine(t)
	user := h.register(t, "skew@example.com")
	secret := h.enableConfirmedDevice(t, user)

	req := LoginRequest{
		Email: "skew@example.com", Password: testPassword, IP: "203.0.113.60",
		OTP: codeFor(t, secret, time.Now().Add(-totpPeriod*time.Second)),
	}
	if _, err := h.engine.Login(context.Background(), req); err != nil {
		t.Fatalf("previous-step code within skew must verify, got %v", err)
	}

	req.OTP = codeFor(t, secret, time.Now().Add(-3*totpPeriod*time.Second))
	if _, err := h.engine.Login(context.Background(), req); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("code three steps old must be rejected, got %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	h := newTestEngine(t)
	h.register(t, "bye@example.com")
	ctx := context.Background()

	res, err := h.engine.Login(ctx, LoginRequest{
		Email: "bye@example.com", Password: testPassword, IP: "203.0.113.70",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	claims, err := h.engine.tokens.RefreshClaims(res.Tokens.Refresh)
	if err != nil {
		t.Fatalf("RefreshClaims failed: %v", err)
	}
	if ok, _ := h.store.SessionValid(ctx, claims.ID); !ok {
		t.Fatal("session must be valid after login")
	}

	if err := h.engine.Logout(ctx, res.Tokens.Refresh); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if ok, _ := h.store.SessionValid(ctx, claims.ID); ok {
		t.Fatal("session must be revoked after logout")
	}

	// Garbage tokens are treated as already logged out.
	if err := h.engine.Logout(ctx, "not-a-token"); err != nil {
		t.Fatalf("Logout with garbage token must be a no-op, got %v", err)
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	h := newTestEngine(t)
	h.register(t, "rotate@example.com")
	ctx := context.Background()

	res, err := h.engine.Login(ctx, LoginRequest{
		Email: "rotate@example.com", Password: testPassword, IP: "203.0.113.80",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	pair, err := h.engine.Refresh(ctx, res.Tokens.Refresh)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatal("expected a full rotated pair")
	}
	if pair.Refresh == res.Tokens.Refresh {
		t.Fatal("rotation must mint a new refresh token")
	}

	// The spent token is dead.
	if _, err := h.engine.Refresh(ctx, res.Tokens.Refresh); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("replayed refresh token: got %v, want ErrSessionInvalid", err)
	}

	// The rotated one works, once.
	again, err := h.engine.Refresh(ctx, pair.Refresh)
	if err != nil {
		t.Fatalf("second rotation failed: %v", err)
	}

	// Logout kills the live chain.
	if err := h.engine.Logout(ctx, again.Refresh); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, again.Refresh); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("refresh after logout: got %v, want ErrSessionInvalid", err)
	}

	// Garbage is rejected the same way.
	if _, err := h.engine.Refresh(ctx, "not-a-token"); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("garbage token: got %v, want ErrSessionInvalid", err)
	}
}
