package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/anchorscm/anchor/internal/auth/domain"
	"github.com/anchorscm/anchor/internal/auth/store"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, username, display_name, password_hash,
	totp_secret, pending_totp_secret, totp_enabled_at, created_at, updated_at`

func (r *usersRepo) scanUser(row *sql.Row) (domain.User, error) {
	var (
		u         domain.User
		secret    sql.NullString
		pending   sql.NullString
		enabledAt sql.NullInt64
		created   int64
		updated   int64
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash,
		&secret, &pending, &enabledAt, &created, &updated,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.TOTPSecret = mapNullString(secret)
	u.PendingTOTPSecret = mapNullString(pending)
	if enabledAt.Valid {
		t := time.Unix(enabledAt.Int64, 0).UTC()
		u.TOTPEnabled = &t
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	u.UpdatedAt = time.Unix(updated, 0).UTC()
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return r.scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return r.scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, display_name, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.DisplayName, u.PasswordHash, now, now,
	)
	return err
}

func (r *usersRepo) UpdateDisplayName(ctx context.Context, userID string, displayName string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET display_name = ?, updated_at = ? WHERE id = ?`,
		displayName, time.Now().Unix(), userID,
	)
	return err
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().Unix(), userID,
	)
	return err
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	return err
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func (r *usersRepo) SetPendingTOTPSecret(ctx context.Context, userID string, secret string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET pending_totp_secret = ?, updated_at = ? WHERE id = ?`,
		secret, time.Now().Unix(), userID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) ClearPendingTOTPSecret(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET pending_totp_secret = NULL, updated_at = ? WHERE id = ?`,
		time.Now().Unix(), userID,
	)
	return err
}

func (r *usersRepo) EnableTOTP(ctx context.Context, userID string, enabledAt time.Time) error {
	// Promotion is a single statement so the pending secret cannot change
	// between the check and the write.
	res, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET totp_secret = pending_totp_secret,
		     pending_totp_secret = NULL,
		     totp_enabled_at = ?,
		     updated_at = ?
		 WHERE id = ? AND pending_totp_secret IS NOT NULL`,
		enabledAt.Unix(), time.Now().Unix(), userID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) DisableTOTP(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET totp_secret = NULL, pending_totp_secret = NULL, totp_enabled_at = NULL, updated_at = ?
		 WHERE id = ?`,
		time.Now().Unix(), userID,
	)
	return err
}

// requireRow maps a zero-row UPDATE to ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
