package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wayfinder-app/wayfinder/internal/token"
)

func testIssuer(t *testing.T) *token.Issuer {
	t.Helper()
	issuer, err := token.NewIssuer(token.Config{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		Issuer:     "wayfinder",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}
	return issuer
}

func TestAuthenticator(t *testing.T) {
	issuer := testIssuer(t)
	userID := uuid.New()
	pair, err := issuer.IssuePair(userID)
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	var gotID uuid.UUID
	var gotOK bool
	handler := Authenticator(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotOK = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + pair.Access, http.StatusNoContent},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"refresh token rejected", "Bearer " + pair.Refresh, http.StatusUnauthorized},
		{"garbage", "Bearer garbage", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotOK = false
			req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if tc.status == http.StatusNoContent {
				if !gotOK || gotID != userID {
					t.Fatalf("context user = %v ok=%v, want %v", gotID, gotOK, userID)
				}
			} else if gotOK {
				t.Fatal("handler must not run with an invalid token")
			}
		})
	}
}

func TestStrictRateLimiter(t *testing.T) {
	handler := StrictRateLimiter()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 25; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
		req.RemoteAddr = "192.0.2.1:40000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after the burst, got %d", last)
	}
}
