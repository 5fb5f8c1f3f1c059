package service

import (
	"context"
	"errors"
	"time"

	"github.com/anchorscm/anchor/internal/auth/domain"
	"github.com/anchorscm/anchor/internal/auth/store"
	"github.com/anchorscm/anchor/pkg/cryptox"
	"github.com/anchorscm/anchor/pkg/idx"
	"github.com/anchorscm/anchor/pkg/jwtx"
	"github.com/anchorscm/anchor/pkg/slogx"
	"github.com/anchorscm/anchor/pkg/totp"
)

const (
	// ChallengeTTL is how long a pending second-factor challenge stays
	// redeemable after the password check succeeded.
	ChallengeTTL = 5 * time.Minute
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidCode        = errors.New("invalid_code")
	ErrInvalidRefresh     = errors.New("invalid_refresh_token")
	ErrTokenRevoked       = errors.New("token_revoked")
	ErrTooManyAttempts    = errors.New("too_many_attempts")
	ErrChallengeExpired   = errors.New("challenge_expired")
)

type TokenService struct {
	KeyManager *jwtx.KeyManager
	Store      store.Store
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// LoginResult is either a full token pair or, when the account has
// two-factor enabled, a challenge that must be completed first.
type LoginResult struct {
	Pair      *domain.TokenPair
	Challenge *domain.TwoFactorChallengeResponse
}

// Login verifies the password and either issues a token pair directly or,
// for two-factor accounts, opens a login challenge. The challenge is only
// created after the password check passes, so redeeming it later proves both
// factors were valid within the same attempt.
func (s *TokenService) Login(ctx context.Context, username, password, clientFP string) (*LoginResult, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a hash comparison anyway so a missing user costs the
			// same wall-clock time as a wrong password.
			_ = cryptox.VerifyPassword(password, cryptox.DummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		l.Info("password verification failed", "username", username)
		return nil, ErrInvalidCredentials
	}

	sessionID := idx.New().String()
	amr := []string{jwtx.AMRPassword}

	if user.TwoFactorActive() {
		challenge := domain.LoginChallenge{
			ID:        idx.New().String(),
			UserID:    user.ID,
			SessionID: sessionID,
			AMR:       amr,
			ExpiresAt: now.Add(ChallengeTTL),
		}
		if err := s.Store.LoginChallenges().CreateLoginChallenge(ctx, challenge); err != nil {
			return nil, err
		}
		return &LoginResult{
			Challenge: &domain.TwoFactorChallengeResponse{
				TwoFactorRequired: true,
				ChallengeToken:    challenge.ID,
				Method:            "totp",
			},
		}, nil
	}

	pair, err := s.issuePair(ctx, s.Store, user, sessionID, idx.New().String(), amr, clientFP, now)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Pair: pair}, nil
}

// CompleteLogin redeems a login challenge with a TOTP code. Failed codes
// count against the challenge; once the cap is hit the challenge is burned
// and the whole login has to start over from the password.
func (s *TokenService) CompleteLogin(ctx context.Context, challengeToken, code, clientFP string) (*domain.TokenPair, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	challenge, err := s.Store.LoginChallenges().GetLoginChallenge(ctx, challengeToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if now.After(challenge.ExpiresAt) {
		_ = s.Store.LoginChallenges().DeleteLoginChallenge(ctx, challengeToken)
		return nil, ErrChallengeExpired
	}
	if challenge.Attempts >= domain.MaxChallengeAttempts {
		_ = s.Store.LoginChallenges().DeleteLoginChallenge(ctx, challengeToken)
		l.Warn("login challenge exceeded max attempts", "challenge", challengeToken)
		return nil, ErrTooManyAttempts
	}

	user, err := s.Store.Users().GetUserByID(ctx, challenge.UserID)
	if err != nil {
		return nil, err
	}
	if !user.TwoFactorActive() {
		// Two-factor was disabled between the password step and now.
		_ = s.Store.LoginChallenges().DeleteLoginChallenge(ctx, challengeToken)
		return nil, ErrInvalidCredentials
	}

	if !totp.Verify(*user.TOTPSecret, code, now) {
		updated, err := s.Store.LoginChallenges().IncrementLoginChallengeAttempts(ctx, challengeToken)
		if err != nil {
			return nil, ErrInvalidCode
		}
		if updated.Attempts >= domain.MaxChallengeAttempts {
			_ = s.Store.LoginChallenges().DeleteLoginChallenge(ctx, challengeToken)
			return nil, ErrTooManyAttempts
		}
		l.Info("totp verification failed", "challenge", challengeToken, "attempts", updated.Attempts)
		return nil, ErrInvalidCode
	}

	amr := append(challenge.AMR, jwtx.AMROTP)

	var pair *domain.TokenPair
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.LoginChallenges().DeleteLoginChallenge(ctx, challengeToken); err != nil {
			return err
		}
		pair, err = s.issuePair(ctx, tx, user, challenge.SessionID, idx.New().String(), amr, clientFP, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Refresh rotates the refresh token: the presented token is consumed exactly
// once and a successor in the same chain is minted together with a fresh
// access token. Presenting an already-consumed token is treated as theft and
// revokes every token in the chain.
func (s *TokenService) Refresh(ctx context.Context, refreshOpaque, clientFP string) (*domain.TokenPair, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	fp := cryptox.FingerprintToken(refreshOpaque)

	var pair *domain.TokenPair
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		rt, err := tx.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return err
		}

		if rt.Revoked {
			return ErrTokenRevoked
		}
		if now.After(rt.ExpiresAt) {
			return ErrInvalidRefresh
		}

		ok, err := tx.RefreshTokens().ConsumeRefreshToken(ctx, fp, now)
		if err != nil {
			return err
		}
		if !ok {
			// Already consumed: someone replayed this token. Kill the
			// whole rotation chain so neither party keeps a session.
			l.Warn("refresh token reuse detected, revoking chain",
				"user_id", rt.UserID, "chain_id", rt.ChainID)
			if err := tx.RefreshTokens().RevokeChain(ctx, rt.ChainID); err != nil {
				return err
			}
			return ErrTokenRevoked
		}

		if rt.ClientFingerprint != "" && clientFP != "" && rt.ClientFingerprint != clientFP {
			// Advisory only: fingerprints drift with proxies and UA
			// updates, so log rather than reject.
			l.Warn("refresh client fingerprint mismatch", "user_id", rt.UserID)
		}

		user, err := tx.Users().GetUserByID(ctx, rt.UserID)
		if err != nil {
			return err
		}

		amr := dedupe(append(rt.AMR, jwtx.AMRRefresh))
		pair, err = s.issuePair(ctx, tx, user, rt.SessionID, rt.ChainID, amr, clientFP, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// StepUp re-verifies credentials for an already-authenticated session and
// returns a fresh access token carrying the elevation grant. The current
// password is always required; accounts with two-factor enabled must present
// a valid code as well.
func (s *TokenService) StepUp(ctx context.Context, claims jwtx.Claims, password, code string) (string, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		l.Info("step-up password verification failed", "user_id", user.ID)
		return "", ErrInvalidCredentials
	}

	if user.TwoFactorActive() {
		if !totp.Verify(*user.TOTPSecret, code, now) {
			l.Info("step-up totp verification failed", "user_id", user.ID)
			return "", ErrInvalidCode
		}
	}

	amr := dedupe(append(claims.AMR, jwtx.AMRStepUp))
	return s.signAccess(user, claims.SID, amr, true, now)
}

// Logout revokes the whole rotation chain behind the presented refresh
// token. Outstanding access tokens simply age out. Unknown tokens are a
// no-op: logging out twice should not fail.
func (s *TokenService) Logout(ctx context.Context, refreshOpaque string) error {
	fp := cryptox.FingerprintToken(refreshOpaque)
	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.Store.RefreshTokens().RevokeChain(ctx, rt.ChainID)
}

// LogoutSession revokes every refresh token in a session, for callers that
// only hold a bearer token.
func (s *TokenService) LogoutSession(ctx context.Context, sessionID string) error {
	return s.Store.RefreshTokens().RevokeSession(ctx, sessionID)
}

// issuePair signs an access token and persists a new refresh token record in
// the given chain. st may be the root store or a transaction.
func (s *TokenService) issuePair(
	ctx context.Context,
	st store.Store,
	user domain.User,
	sessionID, chainID string,
	amr []string,
	clientFP string,
	now time.Time,
) (*domain.TokenPair, error) {
	accessToken, err := s.signAccess(user, sessionID, amr, false, now)
	if err != nil {
		return nil, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	rt := domain.RefreshToken{
		ID:                idx.New().String(),
		UserID:            user.ID,
		SessionID:         sessionID,
		ChainID:           chainID,
		TokenHash:         cryptox.FingerprintToken(refreshOpaque),
		AMR:               amr,
		ClientFingerprint: clientFP,
		ExpiresAt:         now.Add(s.RefreshTTL),
	}
	if err := st.RefreshTokens().CreateRefreshToken(ctx, rt); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshOpaque,
		TokenType:    "Bearer",
		ExpiresIn:    s.AccessTTL,
	}, nil
}

func (s *TokenService) signAccess(
	user domain.User,
	sessionID string,
	amr []string,
	elevated bool,
	now time.Time,
) (string, error) {
	claims := jwtx.NewAccessClaims(jwtx.AccessTokenSpec{
		Subject:   user.ID,
		SessionID: sessionID,
		Username:  user.Username,
		AMR:       amr,
		TTL:       s.AccessTTL,
		Issuer:    s.Issuer,
		Elevated:  elevated,
		Now:       now,
	})
	// Use GetSigner() to distribute signing across multiple keys
	signer := s.KeyManager.GetSigner()
	return signer.Sign(claims)
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
