package domain

import "time"

type User struct {
	ID           string
	Username     string
	DisplayName  string
	PasswordHash string // argon2 encoded

	// TOTPEnabled is the timestamp two-factor was confirmed (nullable).
	TOTPEnabled *time.Time
	// TOTPSecret is the confirmed TOTP secret (nullable, base32 encoded).
	TOTPSecret *string
	// PendingTOTPSecret holds an unconfirmed enrollment secret. Starting a
	// new enrollment overwrites it; only a correct code against this exact
	// secret promotes it to TOTPSecret.
	PendingTOTPSecret *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TwoFactorActive reports whether the user has a confirmed TOTP secret.
func (u *User) TwoFactorActive() bool {
	return u.TOTPEnabled != nil && u.TOTPSecret != nil && *u.TOTPSecret != ""
}
