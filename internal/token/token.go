// Package token issues and validates the access/refresh JWT pair handed
// out after a fully verified login.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken covers malformed, mis-signed, and wrong-kind tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired reports a structurally valid but expired token.
	ErrTokenExpired = errors.New("token expired")
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// Config holds signing material and lifetimes.
type Config struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Pair is the credential pair returned to a fully authenticated client.
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Claims are the registered claims plus the token kind discriminator.
type Claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// Issuer signs HS256 tokens. Immutable after construction.
type Issuer struct {
	config Config
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	return &Issuer{config: cfg}, nil
}

// IssuePair mints a fresh access/refresh pair for userID.
func (i *Issuer) IssuePair(userID uuid.UUID) (Pair, error) {
	access, err := i.sign(userID, kindAccess, i.config.AccessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.sign(userID, kindRefresh, i.config.RefreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

func (i *Issuer) sign(userID uuid.UUID, kind string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    i.config.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.config.Secret)
}

// ValidateAccess parses tokenString and returns the subject user ID when
// it is a live access token signed by this issuer.
func (i *Issuer) ValidateAccess(tokenString string) (uuid.UUID, error) {
	return i.validate(tokenString, kindAccess)
}

// ValidateRefresh is ValidateAccess for refresh tokens.
func (i *Issuer) ValidateRefresh(tokenString string) (uuid.UUID, error) {
	return i.validate(tokenString, kindRefresh)
}

// RefreshClaims returns the full claim set of a live refresh token. The
// session layer needs the token ID and expiry for revocation bookkeeping.
func (i *Issuer) RefreshClaims(tokenString string) (*Claims, error) {
	claims, err := i.parse(tokenString, kindRefresh)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (i *Issuer) validate(tokenString, wantKind string) (uuid.UUID, error) {
	claims, err := i.parse(tokenString, wantKind)
	if err != nil {
		return uuid.Nil, err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

func (i *Issuer) parse(tokenString, wantKind string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.config.Secret, nil
	}, jwt.WithIssuer(i.config.Issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || claims.Kind != wantKind {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
