package auth

import "errors"

// Sentinel failure classes. Handlers map these onto HTTP statuses; the
// engine never returns raw store or backend errors to callers.
var (
	// ErrInvalidCredentials covers unknown account and wrong password
	// alike, so login responses do not reveal which one it was.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned only by the operations that look an
	// account up by email on purpose (forgotten password, recovery code).
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateAccount means the email or username is already taken.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrThrottled is the short-window per-(ip,email) limit.
	ErrThrottled = errors.New("too many login attempts")
	// ErrLockedOut is the long-window per-account failure ceiling.
	ErrLockedOut = errors.New("account temporarily locked")
	// ErrOTPRequired signals the first round trip of a 2FA login.
	ErrOTPRequired = errors.New("one-time code required")
	// ErrOTPInvalid is a wrong or expired one-time code.
	ErrOTPInvalid = errors.New("invalid one-time code")
	// ErrTwoFANotEnabled is returned by 2FA management operations that
	// need an enabled second factor.
	ErrTwoFANotEnabled = errors.New("two-factor authentication not enabled")
	// ErrDeviceNotFound means no TOTP device exists in the state the
	// operation needs (no setup in progress, or nothing confirmed).
	ErrDeviceNotFound = errors.New("totp device not found")
	// ErrRecoveryCodeInvalid covers malformed, unknown and already used
	// recovery codes submitted for a known account.
	ErrRecoveryCodeInvalid = errors.New("invalid or already used recovery code")
	// ErrResetTokenInvalid covers expired, consumed and forged password
	// reset tokens.
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
	// ErrSessionInvalid is a refresh token whose session was revoked,
	// already rotated, or never recorded.
	ErrSessionInvalid = errors.New("invalid or expired session")
	// ErrBackendUnavailable is an infrastructure failure (redis, mail
	// relay, database) the client can only retry.
	ErrBackendUnavailable = errors.New("backend unavailable")
)
