package validation

import (
	"strings"
	"testing"
)

func TestRunAccumulatesPerField(t *testing.T) {
	errs := Run(
		FieldCheck{Field: "email", Check: func() error { return Email("not-an-email") }},
		FieldCheck{Field: "username", Check: func() error { return Username("") }},
		FieldCheck{Field: "password", Check: func() error { return DefaultPasswordPolicy().Password("longenough123") }},
	)
	if len(errs) != 2 {
		t.Fatalf("expected 2 field errors, got %v", errs)
	}
	if _, ok := errs["email"]; !ok {
		t.Fatal("expected an email error")
	}
	if _, ok := errs["password"]; ok {
		t.Fatal("valid password must not appear in the error set")
	}
	msg := errs.Error()
	if !strings.Contains(msg, "email:") || !strings.Contains(msg, "username:") {
		t.Fatalf("unexpected rendering %q", msg)
	}
}

func TestRunReturnsNilWhenAllPass(t *testing.T) {
	errs := Run(
		FieldCheck{Field: "email", Check: func() error { return Email("user@example.com") }},
	)
	if errs != nil {
		t.Fatalf("expected nil error set, got %v", errs)
	}
}

func TestEmail(t *testing.T) {
	for _, addr := range []string{"user@example.com", "a.b+tag@sub.example.org"} {
		if err := Email(addr); err != nil {
			t.Fatalf("Email(%q) = %v, want nil", addr, err)
		}
	}
	for _, addr := range []string{"", "plainaddress", "user@nodot", "Name <user@example.com>", "two@ex.com three@ex.com"} {
		if err := Email(addr); err == nil {
			t.Fatalf("Email(%q) passed, want error", addr)
		}
	}
}

func TestPasswordPolicy(t *testing.T) {
	policy := DefaultPasswordPolicy()
	if err := policy.Password("correcthorse7"); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
	cases := map[string]string{
		"":               "empty",
		"short7a":        "too short",
		"0123456789012":  "no letter",
		"abcdefghijklmn": "no digit",
	}
	for pw, why := range cases {
		if err := policy.Password(pw); err == nil {
			t.Fatalf("password %q (%s) passed, want error", pw, why)
		}
	}
}

func TestUsername(t *testing.T) {
	if err := Username("wanderer_01"); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
	for _, name := range []string{"", "has space", strings.Repeat("x", 51), "ctl\x00char"} {
		if err := Username(name); err == nil {
			t.Fatalf("Username(%q) passed, want error", name)
		}
	}
}

func TestRecoveryCode(t *testing.T) {
	if err := RecoveryCode("123456ABCDEF"); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
	for _, code := range []string{"", "1234-ABCD", "code with space", "abc!"} {
		if err := RecoveryCode(code); err == nil {
			t.Fatalf("RecoveryCode(%q) passed, want error", code)
		}
	}
}

func TestOTP(t *testing.T) {
	if err := OTP(" 123456 ", 6); err != nil {
		t.Fatalf("expected trimmed pass, got %v", err)
	}
	for _, code := range []string{"", "12345", "1234567", "12345a"} {
		if err := OTP(code, 6); err == nil {
			t.Fatalf("OTP(%q) passed, want error", code)
		}
	}
}
