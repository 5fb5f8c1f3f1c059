package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/anchorscm/anchor/internal/auth/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens
		 (id, user_id, session_id, chain_id, token_hash, amr, client_fingerprint,
		  consumed, revoked, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?)`,
		t.ID, t.UserID, t.SessionID, t.ChainID, t.TokenHash,
		strings.Join(t.AMR, " "), t.ClientFingerprint,
		t.ExpiresAt.Unix(), now, now,
	)
	return err
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, session_id, chain_id, token_hash, amr, client_fingerprint,
		        consumed, revoked, expires_at, created_at, updated_at
		 FROM refresh_tokens WHERE token_hash = ?`, hash)

	var (
		t       domain.RefreshToken
		amr     string
		expires int64
		created int64
		updated int64
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.SessionID, &t.ChainID, &t.TokenHash, &amr,
		&t.ClientFingerprint, &t.Consumed, &t.Revoked, &expires, &created, &updated,
	)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	if amr != "" {
		t.AMR = strings.Fields(amr)
	}
	t.ExpiresAt = time.Unix(expires, 0).UTC()
	t.CreatedAt = time.Unix(created, 0).UTC()
	t.UpdatedAt = time.Unix(updated, 0).UTC()
	return t, nil
}

func (r *refreshTokensRepo) ConsumeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error) {
	// The WHERE clause is the whole point: only one caller can ever win
	// this update, so a replayed token matches zero rows.
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET consumed = 1, updated_at = ?
		 WHERE token_hash = ? AND consumed = 0 AND revoked = 0 AND expires_at > ?`,
		now.Unix(), hash, now.Unix(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *refreshTokensRepo) RevokeChain(ctx context.Context, chainID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, updated_at = ? WHERE chain_id = ?`,
		time.Now().Unix(), chainID,
	)
	return err
}

func (r *refreshTokensRepo) RevokeSession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, updated_at = ? WHERE session_id = ?`,
		time.Now().Unix(), sessionID,
	)
	return err
}

func (r *refreshTokensRepo) RevokeAllUserRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, updated_at = ? WHERE user_id = ?`,
		time.Now().Unix(), userID,
	)
	return err
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= ?`, now.Unix(),
	)
	return err
}
