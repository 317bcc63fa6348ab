package handler

import (
	"net/http"

	"github.com/wayfinder-app/wayfinder/internal/auth"
	"github.com/wayfinder-app/wayfinder/internal/middleware"
)

// SetupTOTP starts or resumes device enrolment and returns the otpauth://
// URL the client renders as a QR code.
func (h *Handler) SetupTOTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	provisioningURL, err := h.engine.SetupTOTP(r.Context(), userID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"provisioning_url": provisioningURL})
}

type verifyTOTPRequest struct {
	OTP    string `json:"otp"`
	Action string `json:"action"`
}

// VerifyTOTP applies a verified code: action "enable" confirms the pending
// device and returns the recovery batch, "disable" turns 2FA off.
func (h *Handler) VerifyTOTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	var req verifyTOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	action := auth.VerifyTOTPAction(req.Action)
	if action != auth.TOTPEnable && action != auth.TOTPDisable {
		writeError(w, http.StatusBadRequest, "action must be enable or disable")
		return
	}

	codes, err := h.engine.VerifyTOTP(r.Context(), userID, req.OTP, action)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	if action == auth.TOTPEnable {
		writeJSON(w, http.StatusOK, map[string]any{
			"message":        "two-factor authentication enabled",
			"recovery_codes": codes,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "two-factor authentication disabled"})
}

// DisableTOTP turns 2FA off for an authenticated session without a code.
// 400 when it was not enabled.
func (h *Handler) DisableTOTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if err := h.engine.DisableTOTP(r.Context(), userID); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "two-factor authentication disabled"})
}

type useRecoveryCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// UseRecoveryCode signs in with a one-time recovery code. 404 for an
// unknown account, 400 for a malformed, unknown or burned code.
func (h *Handler) UseRecoveryCode(w http.ResponseWriter, r *http.Request) {
	var req useRecoveryCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pair, err := h.engine.UseRecoveryCode(r.Context(), req.Email, req.Code)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "recovery successful",
		"access":  pair.Access,
		"refresh": pair.Refresh,
	})
}
