// Package jwtx signs and verifies the self-describing access tokens used by
// the session core. Tokens are Ed25519-signed JWTs carrying the subject, the
// session id, and the step-up elevation claims; expiry and privilege are
// always revalidated from these signed claims, never from client state.
package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token lifetimes. Access tokens are deliberately short; the elevation
// window is bounded by the access lifetime so an elevated token can never
// outlive a normal one.
const (
	// DefaultAccessTokenTTL is the lifetime of a normal access token.
	DefaultAccessTokenTTL = 5 * time.Minute

	// DefaultRefreshTokenTTL is the lifetime of a rotating refresh token.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// DefaultElevationWindow is how long a step-up grant stays fresh.
	DefaultElevationWindow = 5 * time.Minute
)

// Authentication Method Reference values recorded in the "amr" claim.
const (
	AMRPassword = "pwd"     // password-based authentication
	AMROTP      = "otp"     // one-time password (TOTP)
	AMRRefresh  = "refresh" // minted via refresh rotation
	AMRStepUp   = "stepup"  // fresh password (+code) re-verification
)

// Claims are the access-token claims. The elevation pair (elv/elv_at) is the
// only privilege state in the system: a token either carries a fresh step-up
// grant or it is a normal token.
type Claims struct {
	jwt.RegisteredClaims

	// SID is the session ID, stable across refresh rotations.
	SID string `json:"sid,omitempty"`

	// Username of the authenticated subject.
	Username string `json:"username,omitempty"`

	// AMR records how this session authenticated, e.g. ["pwd","otp"].
	AMR []string `json:"amr,omitempty"`

	// Elevated marks a token minted by step-up re-verification.
	Elevated bool `json:"elv,omitempty"`

	// ElevatedAt is the unix second of the step-up verification. Freshness
	// is evaluated on every check; there is no separate expiry error for a
	// stale grant, it simply stops counting as elevated.
	ElevatedAt int64 `json:"elv_at,omitempty"`
}

// AccessTokenSpec bundles the inputs for a new access token.
type AccessTokenSpec struct {
	Subject   string
	SessionID string
	Username  string
	AMR       []string
	TTL       time.Duration
	Issuer    string
	Elevated  bool
	Now       time.Time
}

// NewAccessClaims builds minimally-correct claims for an access token.
func NewAccessClaims(spec AccessTokenSpec) Claims {
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    spec.Issuer,
			Subject:   spec.Subject,
			IssuedAt:  jwt.NewNumericDate(spec.Now),
			NotBefore: jwt.NewNumericDate(spec.Now),
			ExpiresAt: jwt.NewNumericDate(spec.Now.Add(spec.TTL)),
			ID:        NewJTI(),
		},
		SID:      spec.SessionID,
		Username: spec.Username,
		AMR:      spec.AMR,
	}
	if spec.Elevated {
		c.Elevated = true
		c.ElevatedAt = spec.Now.Unix()
	}
	return c
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// HasElevation reports whether the token carries a step-up grant that is
// still fresh at the given instant. A stale grant silently downgrades the
// token to normal privilege; it is not an error in itself.
func (c *Claims) HasElevation(window time.Duration, now time.Time) bool {
	if !c.Elevated || c.ElevatedAt == 0 {
		return false
	}
	return now.Sub(time.Unix(c.ElevatedAt, 0)) <= window
}

// HasAMR reports whether the given authentication method is recorded.
func (c *Claims) HasAMR(method string) bool {
	return slices.Contains(c.AMR, method)
}

// ValidateIssuer checks the issuer claim against the expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateExpiry ensures the token has not expired (exp) and is not used
// before its validity start (nbf).
func (c *Claims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}
