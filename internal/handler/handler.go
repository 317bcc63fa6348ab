// Package handler is the HTTP surface. Handlers decode JSON, call the
// engine or repository, and translate sentinel errors into statuses; no
// security policy lives here.
package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/wayfinder-app/wayfinder/internal/auth"
	"github.com/wayfinder-app/wayfinder/internal/middleware"
	"github.com/wayfinder-app/wayfinder/internal/repository"
	"github.com/wayfinder-app/wayfinder/internal/token"
	"github.com/wayfinder-app/wayfinder/internal/validation"
)

// Handler bundles the dependencies the HTTP layer needs.
type Handler struct {
	engine *auth.Engine
	store  repository.Store
	tokens *token.Issuer
	log    zerolog.Logger
}

// New wires the handler set.
func New(engine *auth.Engine, store repository.Store, tokens *token.Issuer, logger zerolog.Logger) *Handler {
	return &Handler{engine: engine, store: store, tokens: tokens, log: logger}
}

// Routes builds the full API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger(h.log))
	r.Use(middleware.RateLimiter())

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		// Unauthenticated account surface.
		r.Group(func(r chi.Router) {
			r.Use(middleware.StrictRateLimiter())
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.Post("/refresh", h.Refresh)
			r.Post("/forgotten-password", h.ForgottenPassword)
			r.Post("/password-reset", h.ResetPassword)
			r.Post("/use-recovery-code", h.UseRecoveryCode)
		})

		// Everything below needs a live access token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticator(h.tokens))
			r.Get("/user", h.Profile)
			r.Put("/change-password", h.ChangePassword)
			r.Get("/setup-totp", h.SetupTOTP)
			r.Post("/verify-totp", h.VerifyTOTP)
			r.Post("/disable-totp", h.DisableTOTP)

			r.Get("/route", h.ListRoutes)
			r.Post("/route", h.CreateRoute)
			r.Delete("/route/{id}", h.DeleteRoute)
			r.Get("/location", h.ListLocations)
			r.Post("/location", h.CreateLocation)
			r.Delete("/location/{id}", h.DeleteLocation)
			r.Get("/fav-route", h.ListFavRoutes)
			r.Post("/fav-route", h.CreateFavRoute)
			r.Delete("/fav-route/{id}", h.DeleteFavRoute)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps engine sentinels onto the HTTP contract.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": fieldErrs,
		})
		return
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, "invalid credentials")
	case errors.Is(err, auth.ErrOTPInvalid):
		writeError(w, http.StatusUnauthorized, "invalid one-time code")
	case errors.Is(err, auth.ErrSessionInvalid):
		writeError(w, http.StatusUnauthorized, "invalid or expired session")
	case errors.Is(err, auth.ErrThrottled), errors.Is(err, auth.ErrLockedOut):
		writeError(w, http.StatusTooManyRequests, "too many attempts, try again later")
	case errors.Is(err, auth.ErrDuplicateAccount):
		writeError(w, http.StatusConflict, "account already exists")
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, auth.ErrTwoFANotEnabled),
		errors.Is(err, auth.ErrDeviceNotFound),
		errors.Is(err, auth.ErrRecoveryCodeInvalid),
		errors.Is(err, auth.ErrResetTokenInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// clientIP strips the port RemoteAddr carries when no proxy rewrote it.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
