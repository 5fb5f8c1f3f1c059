package store

import (
	"context"
	"errors"
	"time"

	"github.com/anchorscm/anchor/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and forces multi-step operations through WithTx so a rotation or
// revocation can never half-apply.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens
	LoginChallenges() LoginChallenges

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during login.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateDisplayName mutates the display_name and bumps updated_at.
	UpdateDisplayName(ctx context.Context, userID string, displayName string) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// DeleteUser cascades to refresh_tokens and login_challenges (per schema).
	DeleteUser(ctx context.Context, userID string) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)

	// SetPendingTOTPSecret stores an unconfirmed enrollment secret,
	// overwriting any previous pending one.
	SetPendingTOTPSecret(ctx context.Context, userID string, secret string) error

	// ClearPendingTOTPSecret drops an unconfirmed enrollment secret.
	ClearPendingTOTPSecret(ctx context.Context, userID string) error

	// EnableTOTP promotes the pending secret to the confirmed one and
	// stamps totp_enabled_at. Fails with ErrNotFound when there is no
	// pending secret to promote.
	EnableTOTP(ctx context.Context, userID string, enabledAt time.Time) error

	// DisableTOTP clears the confirmed secret, the pending secret, and the
	// enabled timestamp.
	DisableTOTP(ctx context.Context, userID string) error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the token record by its fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// ConsumeRefreshToken marks the token consumed if and only if it is
	// still active at now. Returns false when the conditional update
	// matched no row, which the caller must treat as a reuse or an
	// expired/revoked token.
	ConsumeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error)

	// RevokeChain revokes every token sharing the rotation chain.
	RevokeChain(ctx context.Context, chainID string) error

	// RevokeSession revokes every token belonging to one session (logout).
	RevokeSession(ctx context.Context, sessionID string) error

	// RevokeAllUserRefreshTokens bulk revocation for a user (e.g., password change).
	RevokeAllUserRefreshTokens(ctx context.Context, userID string) error

	// DeleteExpiredRefreshTokens is housekeeping.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) error
}

type LoginChallenges interface {
	// CreateLoginChallenge stores a pending second-factor challenge.
	CreateLoginChallenge(ctx context.Context, c domain.LoginChallenge) error

	// GetLoginChallenge retrieves a challenge by its token.
	GetLoginChallenge(ctx context.Context, id string) (domain.LoginChallenge, error)

	// IncrementLoginChallengeAttempts bumps the failed attempt counter and
	// returns the updated record.
	IncrementLoginChallengeAttempts(ctx context.Context, id string) (domain.LoginChallenge, error)

	// DeleteLoginChallenge removes a challenge once redeemed or abandoned.
	DeleteLoginChallenge(ctx context.Context, id string) error

	// DeleteExpiredLoginChallenges is housekeeping.
	DeleteExpiredLoginChallenges(ctx context.Context, now time.Time) error
}
