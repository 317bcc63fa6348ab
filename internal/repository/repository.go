// Package repository persists users, second-factor state and map resources.
// The Postgres implementation is the production store; Memory is the
// in-process double the service tests run against.
package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wayfinder-app/wayfinder/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist, or
	// when a conditional update matched nothing.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate is returned when an insert violates a uniqueness
	// constraint (email, username or recovery-code hash).
	ErrDuplicate = errors.New("repository: duplicate")
)

// LookupHash is the deterministic index key for an identity column: sha256
// hex over the trimmed, lowercased plaintext. Stored alongside the value so
// equality lookups never touch the plaintext column.
func LookupHash(value string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(value))))
	return hex.EncodeToString(sum[:])
}

// UserStore persists identity records.
type UserStore interface {
	// CreateUser inserts u, recomputing its lookup hashes. ErrDuplicate
	// when the email or username hash already exists.
	CreateUser(ctx context.Context, u *model.User) error
	UserByEmailHash(ctx context.Context, emailHash string) (*model.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	// RecordLoginFailure bumps the persistent failure counter. A failure
	// landing after the previous one has aged past window restarts the
	// count at 1. Returns the count after the bump.
	RecordLoginFailure(ctx context.Context, id uuid.UUID, now time.Time, window time.Duration) (int, error)
	ResetLoginFailures(ctx context.Context, id uuid.UUID) error
	SetTwoFAEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
}

// TOTPStore persists per-user TOTP devices.
type TOTPStore interface {
	// Device returns the user's device in the given confirmation state.
	Device(ctx context.Context, userID uuid.UUID, confirmed bool) (*model.TOTPDevice, error)
	CreateDevice(ctx context.Context, d *model.TOTPDevice) error
	ConfirmDevice(ctx context.Context, id uuid.UUID) error
	// DeleteDevices removes every device the user has, confirmed or not.
	DeleteDevices(ctx context.Context, userID uuid.UUID) error
}

// RecoveryStore persists hashed one-time recovery codes.
type RecoveryStore interface {
	// ReplaceCodes atomically swaps the user's batch for the given hashes.
	ReplaceCodes(ctx context.Context, userID uuid.UUID, hashes []string) error
	// ConsumeCode marks the matching unused code as used. ErrNotFound when
	// no unused code with that hash exists, which covers both unknown and
	// already-redeemed codes.
	ConsumeCode(ctx context.Context, userID uuid.UUID, codeHash string) error
	DeleteCodes(ctx context.Context, userID uuid.UUID) error
}

// SessionStore tracks issued refresh tokens so logout can revoke them.
type SessionStore interface {
	CreateSession(ctx context.Context, userID uuid.UUID, tokenID string, expiresAt time.Time) error
	RevokeSession(ctx context.Context, tokenID string) error
	SessionValid(ctx context.Context, tokenID string) (bool, error)
}

// RouteStore persists journeys and their collaborator resources.
type RouteStore interface {
	CreateRoute(ctx context.Context, r *model.Route) error
	RoutesByUser(ctx context.Context, userID uuid.UUID) ([]model.Route, error)
	DeleteRoute(ctx context.Context, id, userID uuid.UUID) error

	CreateLocation(ctx context.Context, l *model.SearchedLocation) error
	LocationsByUser(ctx context.Context, userID uuid.UUID) ([]model.SearchedLocation, error)
	DeleteLocation(ctx context.Context, id, userID uuid.UUID) error

	CreateFavRoute(ctx context.Context, f *model.FavRoute) error
	FavRoutesByUser(ctx context.Context, userID uuid.UUID) ([]model.FavRoute, error)
	DeleteFavRoute(ctx context.Context, id, userID uuid.UUID) error
}

// Store is the full persistence surface the service wires at startup.
type Store interface {
	UserStore
	TOTPStore
	RecoveryStore
	SessionStore
	RouteStore
}
