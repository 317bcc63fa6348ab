// Package model holds the persistent records shared by the repository and
// service layers.
package model

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity record. Email and Username may be stored encrypted
// at rest; EmailHash and UsernameHash are deterministic sha256 lookup
// columns recomputed by the repository on every save.
type User struct {
	ID             uuid.UUID
	Email          string
	EmailHash      string
	Username       string
	UsernameHash   string
	PasswordHash   string
	IsActive       bool
	IsStaff        bool
	FailedAttempts int
	LastFailedAt   time.Time
	TwoFAEnabled   bool
	CreatedAt      time.Time
}

// TOTPDevice is a per-user TOTP secret. At most one confirmed device per
// user is meaningful for login; an unconfirmed device is a setup in
// progress and is reused rather than duplicated.
type TOTPDevice struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Secret    string // base32, no padding
	Confirmed bool
	CreatedAt time.Time
}

// RecoveryCode is a one-time 2FA bypass credential. Only the sha256 hash
// of the code is stored; the plaintext is returned to the user exactly
// once at issue time.
type RecoveryCode struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CodeHash  string
	Used      bool
	CreatedAt time.Time
}

// Route is a stored journey between two named coordinates.
type Route struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	StartLocationName string
	StartLocationLat  float64
	StartLocationLng  float64
	EndLocationName   string
	EndLocationLat    float64
	EndLocationLng    float64
	Distance          float64
	Duration          time.Duration
	Saved             bool
	CreatedAt         time.Time
}

// SearchedLocation is a point the user looked up on the map.
type SearchedLocation struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Lat       float64
	Lng       float64
	CreatedAt time.Time
}

// FavRoute is a user-named favourite with an opaque JSON payload.
type FavRoute struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Data      []byte
	CreatedAt time.Time
}
