package domain

import "time"

// TokenPair is what a successful login, refresh, or step-up returns: the
// short-lived access token (JWT) and the opaque refresh token.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    time.Duration `json:"expires_in"`           // seconds until expiry
}

// RefreshToken models the stored refresh token record in the DB. The raw
// token is never stored; TokenHash is its deterministic fingerprint.
type RefreshToken struct {
	ID        string
	UserID    string
	SessionID string // Session ID (SID) that persists across rotations
	ChainID   string // Rotation chain; every descendant of one login shares it
	TokenHash string // deterministic fingerprint (base64url SHA-256)
	AMR       []string

	// ClientFingerprint is an advisory binding derived from request
	// attributes at issue time. A mismatch on use is logged, not fatal.
	ClientFingerprint string

	// Consumed flips exactly once when the token is rotated. A second use
	// marks the whole chain compromised.
	Consumed  bool
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the token can still be redeemed.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Consumed && !t.Revoked && now.Before(t.ExpiresAt)
}
