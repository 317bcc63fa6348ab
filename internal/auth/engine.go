package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wayfinder-app/wayfinder/internal/audit"
	"github.com/wayfinder-app/wayfinder/internal/mail"
	"github.com/wayfinder-app/wayfinder/internal/model"
	"github.com/wayfinder-app/wayfinder/internal/token"
)

const mailSendTimeout = 10 * time.Second

// Audit event kinds emitted by the engine.
const (
	auditRegister       = "register"
	auditLoginSuccess   = "login_success"
	auditLoginFailure   = "login_failure"
	auditLoginThrottled = "login_throttled"
	auditLoginLocked    = "login_locked"
	auditOTPRequired    = "otp_required"
	auditOTPFailure     = "otp_failure"
	auditLogout         = "logout"
	auditTokenRefresh   = "token_refresh"
	auditPasswordChange = "password_change"
	auditPasswordForgot = "password_forgot"
	auditPasswordReset  = "password_reset"
	auditTOTPEnabled    = "totp_enabled"
	auditTOTPDisabled   = "totp_disabled"
	auditRecoveryUsed   = "recovery_code_used"
	auditRecoveryFailed = "recovery_code_failed"
)

func (e *Engine) emitAudit(ctx context.Context, kind string, userID uuid.UUID, ip string, success bool, cause error, meta map[string]string) {
	if e.audit == nil {
		return
	}
	event := audit.Event{
		Timestamp: e.now(),
		Kind:      kind,
		IP:        ip,
		Success:   success,
		Metadata:  meta,
	}
	if userID != uuid.Nil {
		event.UserID = userID.String()
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	e.audit.Emit(ctx, event)
}

// sendMail delivers in the background. Notification mail never decides a
// request's outcome; failures are logged and dropped.
func (e *Engine) sendMail(msg mail.Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mailSendTimeout)
		defer cancel()
		if err := e.mailer.Send(ctx, msg); err != nil {
			e.log.Warn().Err(err).Str("subject", msg.Subject).Msg("mail delivery failed")
		}
	}()
}

// issueSession mints the token pair and records the refresh token so
// logout can revoke it.
func (e *Engine) issueSession(ctx context.Context, user *model.User) (token.Pair, error) {
	pair, err := e.tokens.IssuePair(user.ID)
	if err != nil {
		return token.Pair{}, ErrBackendUnavailable
	}
	claims, err := e.tokens.RefreshClaims(pair.Refresh)
	if err != nil {
		return token.Pair{}, ErrBackendUnavailable
	}
	if err := e.store.CreateSession(ctx, user.ID, claims.ID, claims.ExpiresAt.Time); err != nil {
		return token.Pair{}, ErrBackendUnavailable
	}
	return pair, nil
}

// lockedOut reports whether the persistent failure counter has hit the
// ceiling inside the lockout window.
func (e *Engine) lockedOut(user *model.User) bool {
	if user.FailedAttempts < e.cfg.LockoutThreshold {
		return false
	}
	return e.now().Sub(user.LastFailedAt) < e.cfg.LockoutWindow
}
