package domain

import "time"

// MaxChallengeAttempts caps failed code submissions per login challenge.
const MaxChallengeAttempts = 5

// TwoFactorChallengeResponse is returned when a password check succeeds but
// the account has two-factor enabled.
type TwoFactorChallengeResponse struct {
	TwoFactorRequired bool   `json:"2fa_required"` // always true
	ChallengeToken    string `json:"challenge_token"`
	Method            string `json:"method"` // currently always "totp"
}

// LoginChallenge is a pending second-factor check. It is created only after
// a successful password verification, so redeeming one proves password and
// code were valid within the same logical attempt.
type LoginChallenge struct {
	ID        string // ULID (the challenge_token)
	UserID    string
	SessionID string // session the eventual token pair will carry
	AMR       []string
	Attempts  int // failed code submissions so far
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Usable reports whether the challenge can still accept a code.
func (c *LoginChallenge) Usable(now time.Time) bool {
	return c.Attempts < MaxChallengeAttempts && now.Before(c.ExpiresAt)
}
