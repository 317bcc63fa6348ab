// Package validation provides typed per-field validators composed into a
// single pass over a request. Each validator checks exactly one field and
// failures accumulate into a structured error set keyed by field name, so
// handlers can return every problem at once instead of the first.
package validation

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"unicode"
)

// Errors maps field name to the first failure observed for that field.
type Errors map[string]string

// Error renders the set deterministically, field-sorted.
func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e[field]))
	}
	return strings.Join(parts, "; ")
}

// FieldCheck is one named validator over an already-extracted field value.
type FieldCheck struct {
	Field string
	Check func() error
}

// Run executes every check and returns the accumulated error set, or nil
// when all fields pass.
func Run(checks ...FieldCheck) Errors {
	var errs Errors
	for _, c := range checks {
		if err := c.Check(); err != nil {
			if errs == nil {
				errs = Errors{}
			}
			if _, seen := errs[c.Field]; !seen {
				errs[c.Field] = err.Error()
			}
		}
	}
	return errs
}

// Email verifies addr parses as a single RFC 5322 address with a domain.
func Email(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("is required")
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr || !strings.Contains(addr, ".") {
		return fmt.Errorf("is not a valid email address")
	}
	return nil
}

// PasswordPolicy is the pluggable strength rule set applied at
// registration, password change, and reset.
type PasswordPolicy struct {
	MinLength      int
	RequireLetter  bool
	RequireDigit   bool
	RequireSpecial bool
}

// DefaultPasswordPolicy mirrors the policy the account endpoints enforce.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:     10,
		RequireLetter: true,
		RequireDigit:  true,
	}
}

// Password checks value against the policy.
func (p PasswordPolicy) Password(value string) error {
	if value == "" {
		return fmt.Errorf("is required")
	}
	if len(value) < p.MinLength {
		return fmt.Errorf("must be at least %d characters", p.MinLength)
	}
	var letter, digit, special bool
	for _, r := range value {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	if p.RequireLetter && !letter {
		return fmt.Errorf("must contain a letter")
	}
	if p.RequireDigit && !digit {
		return fmt.Errorf("must contain a digit")
	}
	if p.RequireSpecial && !special {
		return fmt.Errorf("must contain a special character")
	}
	return nil
}

// Username requires a short printable handle without whitespace.
func Username(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("is required")
	}
	if len(value) > 50 {
		return fmt.Errorf("must be at most 50 characters")
	}
	for _, r := range value {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return fmt.Errorf("must not contain whitespace or control characters")
		}
	}
	return nil
}

// RecoveryCode requires a non-empty alphanumeric token.
func RecoveryCode(value string) error {
	if value == "" {
		return fmt.Errorf("is required")
	}
	for _, r := range value {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return fmt.Errorf("must be alphanumeric")
		}
	}
	return nil
}

// OTP requires exactly digits numeric characters after trimming.
func OTP(value string, digits int) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("is required")
	}
	if len(value) != digits {
		return fmt.Errorf("must be %d digits", digits)
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return fmt.Errorf("must be numeric")
		}
	}
	return nil
}

// Required rejects empty and all-whitespace values.
func Required(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("is required")
	}
	return nil
}
