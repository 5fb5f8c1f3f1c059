package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/anchorscm/anchor/internal/auth/domain"
)

type loginChallengesRepo struct {
	db dbtx
}

func (r *loginChallengesRepo) CreateLoginChallenge(ctx context.Context, c domain.LoginChallenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO login_challenges (id, user_id, session_id, amr, attempts, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.SessionID, strings.Join(c.AMR, " "),
		c.Attempts, c.ExpiresAt.Unix(), time.Now().Unix(),
	)
	return err
}

func (r *loginChallengesRepo) GetLoginChallenge(ctx context.Context, id string) (domain.LoginChallenge, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, session_id, amr, attempts, expires_at, created_at
		 FROM login_challenges WHERE id = ?`, id)

	var (
		c       domain.LoginChallenge
		amr     string
		expires int64
		created int64
	)
	err := row.Scan(&c.ID, &c.UserID, &c.SessionID, &amr, &c.Attempts, &expires, &created)
	if err != nil {
		return domain.LoginChallenge{}, mapNotFound(err)
	}
	if amr != "" {
		c.AMR = strings.Fields(amr)
	}
	c.ExpiresAt = time.Unix(expires, 0).UTC()
	c.CreatedAt = time.Unix(created, 0).UTC()
	return c, nil
}

func (r *loginChallengesRepo) IncrementLoginChallengeAttempts(ctx context.Context, id string) (domain.LoginChallenge, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE login_challenges SET attempts = attempts + 1 WHERE id = ?`, id)
	if err != nil {
		return domain.LoginChallenge{}, err
	}
	if err := requireRow(res); err != nil {
		return domain.LoginChallenge{}, err
	}
	return r.GetLoginChallenge(ctx, id)
}

func (r *loginChallengesRepo) DeleteLoginChallenge(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM login_challenges WHERE id = ?`, id)
	return err
}

func (r *loginChallengesRepo) DeleteExpiredLoginChallenges(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM login_challenges WHERE expires_at <= ?`, now.Unix())
	return err
}
