package handler

import (
	"net/http"

	"github.com/wayfinder-app/wayfinder/internal/auth"
	"github.com/wayfinder-app/wayfinder/internal/middleware"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates an account. 201 with the public profile on success.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.engine.Register(r.Context(), auth.RegisterRequest{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":       user.ID.String(),
		"email":    user.Email,
		"username": user.Username,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OTP      string `json:"otp"`
}

// Login is the two-phase entry point. With 2FA enabled and no code in the
// request the response is 200 {"requires_otp": true} and the client
// resubmits the same credentials with the code.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.engine.Login(r.Context(), auth.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		OTP:      req.OTP,
		IP:       clientIP(r),
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if res.OTPRequired {
		writeJSON(w, http.StatusOK, map[string]bool{"requires_otp": true})
		return
	}
	writeJSON(w, http.StatusOK, res.Tokens)
}

type logoutRequest struct {
	Refresh string `json:"refresh"`
}

// Logout revokes the refresh token's session. Always 200; a dead token is
// already logged out.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.engine.Logout(r.Context(), req.Refresh); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Refresh rotates a token pair. 401 when the refresh token is invalid or
// its session was revoked; the submitted token stops working either way.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pair, err := h.engine.Refresh(r.Context(), req.Refresh)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Profile returns the authenticated user's account.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	user, err := h.engine.Profile(r.Context(), userID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":             user.ID.String(),
		"email":          user.Email,
		"username":       user.Username,
		"is_2fa_enabled": user.TwoFAEnabled,
		"created_at":     user.CreatedAt,
	})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword swaps the password for an authenticated user. 204 on
// success.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.engine.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type forgottenPasswordRequest struct {
	Email string `json:"email"`
}

// ForgottenPassword issues a reset token and emails the link. 404 for an
// unknown account.
func (h *Handler) ForgottenPassword(w http.ResponseWriter, r *http.Request) {
	var req forgottenPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.engine.ForgottenPassword(r.Context(), req.Email); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "reset email sent"})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword redeems a reset token. 204 on success, 400 for any
// invalid, expired or replayed token.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.engine.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
