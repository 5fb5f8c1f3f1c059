package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/anchorscm/anchor/internal/auth/domain"
	"github.com/anchorscm/anchor/internal/auth/store"
	"github.com/anchorscm/anchor/internal/auth/store/drivers/sqlite"
	"github.com/anchorscm/anchor/pkg/cryptox"
	"github.com/anchorscm/anchor/pkg/jwtx"
	"github.com/anchorscm/anchor/pkg/totp"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "anchor-test"
	testPassword = "correct horse battery staple"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())
	return st
}

func newTokenService(t *testing.T, st store.Store) *TokenService {
	t.Helper()
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Issuer:  testIssuer,
		NumKeys: 1,
	})
	require.NoError(t, err)

	return &TokenService{
		KeyManager: km,
		Store:      st,
		Issuer:     testIssuer,
		AccessTTL:  jwtx.DefaultAccessTokenTTL,
		RefreshTTL: jwtx.DefaultRefreshTokenTTL,
	}
}

func seedUser(t *testing.T, st store.Store, username string) domain.User {
	t.Helper()
	svc := &UserService{Store: st}
	user, err := svc.Register(context.Background(), username, "Test User", testPassword)
	require.NoError(t, err)
	return user
}

func enableTOTP(t *testing.T, st store.Store, userID string) string {
	t.Helper()
	ctx := context.Background()
	secret, err := totp.NewSecret()
	require.NoError(t, err)
	require.NoError(t, st.Users().SetPendingTOTPSecret(ctx, userID, secret))
	require.NoError(t, st.Users().EnableTOTP(ctx, userID, time.Now()))
	return secret
}

func TestLoginWithoutTwoFactor(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTokenService(t, st)
	user := seedUser(t, st, "alice")

	t.Run("correct password issues a pair", func(t *testing.T) {
		res, err := svc.Login(ctx, "alice", testPassword, "")
		require.NoError(t, err)
		require.Nil(t, res.Challenge)
		require.NotNil(t, res.Pair)
		require.NotEmpty(t, res.Pair.AccessToken)
		require.NotEmpty(t, res.Pair.RefreshToken)

		claims, err := svc.KeyManager.Verifier.Verify(res.Pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, user.ID, claims.Subject)
		require.Equal(t, "alice", claims.Username)
		require.Equal(t, []string{jwtx.AMRPassword}, claims.AMR)
		require.False(t, claims.Elevated)
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		_, err := svc.Login(ctx, "alice", "wrong", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user is rejected identically", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody", testPassword, "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestLoginWithTwoFactor(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTokenService(t, st)
	user := seedUser(t, st, "bob")
	secret := enableTOTP(t, st, user.ID)

	res, err := svc.Login(ctx, "bob", testPassword, "")
	require.NoError(t, err)
	require.Nil(t, res.Pair, "password alone must not issue tokens")
	require.NotNil(t, res.Challenge)
	require.True(t, res.Challenge.TwoFactorRequired)
	require.NotEmpty(t, res.Challenge.ChallengeToken)

	t.Run("wrong code does not complete", func(t *testing.T) {
		_, err := svc.CompleteLogin(ctx, res.Challenge.ChallengeToken, "000000", "")
		require.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("valid code completes with otp in amr", func(t *testing.T) {
		code := totp.Generate(secret, time.Now())
		pair, err := svc.CompleteLogin(ctx, res.Challenge.ChallengeToken, code, "")
		require.NoError(t, err)
		require.NotEmpty(t, pair.RefreshToken)

		claims, err := svc.KeyManager.Verifier.Verify(pair.AccessToken)
		require.NoError(t, err)
		require.Contains(t, claims.AMR, jwtx.AMRPassword)
		require.Contains(t, claims.AMR, jwtx.AMROTP)
	})

	t.Run("challenge is single use", func(t *testing.T) {
		code := totp.Generate(secret, time.Now())
		_, err := svc.CompleteLogin(ctx, res.Challenge.ChallengeToken, code, "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestCompleteLoginAttemptCap(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTokenService(t, st)
	user := seedUser(t, st, "carol")
	secret := enableTOTP(t, st, user.ID)

	res, err := svc.Login(ctx, "carol", testPassword, "")
	require.NoError(t, err)
	require.NotNil(t, res.Challenge)

	for i := 0; i < domain.MaxChallengeAttempts-1; i++ {
		_, err := svc.CompleteLogin(ctx, res.Challenge.ChallengeToken, "000000", "")
		require.ErrorIs(t, err, ErrInvalidCode)
	}

	// The final failed attempt burns the challenge entirely.
	_, err = svc.CompleteLogin(ctx, res.Challenge.ChallengeToken, "000000", "")
	require.ErrorIs(t, err, ErrTooManyAttempts)

	// Even the right code is refused now; login must start over.
	code := totp.Generate(secret, time.Now())
	_, err = svc.CompleteLogin(ctx, res.Challenge.ChallengeToken, code, "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshRotation(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTokenService(t, st)
	seedUser(t, st, "dave")

	res, err := svc.Login(ctx, "dave", testPassword, "")
	require.NoError(t, err)
	first := res.Pair

	t.Run("refresh issues a new pair and keeps the session", func(t *testing.T) {
		second, err := svc.Refresh(ctx, first.RefreshToken, "")
		require.NoError(t, err)
		require.NotEqual(t, first.RefreshToken, second.RefreshToken)

		c1, err := svc.KeyManager.Verifier.Verify(first.AccessToken)
		require.NoError(t, err)
		c2, err := svc.KeyManager.Verifier.Verify(second.AccessToken)
		require.NoError(t, err)
		require.Equal(t, c1.SID, c2.SID)
		require.Contains(t, c2.AMR, jwtx.AMRRefresh)
	})

	t.Run("garbage refresh token is rejected", func(t *testing.T) {
		_, err := svc.Refresh(ctx, "definitely-not-a-token", "")
		require.ErrorIs(t, err, ErrInvalidRefresh)
	})
}

func TestRefreshReuseRevokesChain(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTokenService(t, st)
	seedUser(t, st, "erin")

	res, err := svc.Login(ctx, "erin", testPassword, "")
	require.NoError(t, err)
	first := res.Pair

	second, err := svc.Refresh(ctx, first.RefreshToken, "")
	require.NoError(t, err)

	// Replaying the consumed token is theft: the whole chain dies.
	_, err = svc.Refresh(ctx, first.RefreshToken, "")
	require.ErrorIs(t, err, ErrTokenRevoked)

	// The legitimate successor is dead too.
	_, err = svc.Refresh(ctx, second.RefreshToken, "")
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestStepUp(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTokenService(t, st)
	user := seedUser(t, st, "frank")
	secret := enableTOTP(t, st, user.ID)

	res, err := svc.Login(ctx, "frank", testPassword, "")
	require.NoError(t, err)
	code := totp.Generate(secret, time.Now())
	pair, err := svc.CompleteLogin(ctx, res.Challenge.ChallengeToken, code, "")
	require.NoError(t, err)

	claims, err := svc.KeyManager.Verifier.Verify(pair.AccessToken)
	require.NoError(t, err)

	t.Run("password and valid code elevate", func(t *testing.T) {
		elevated, err := svc.StepUp(ctx, claims, testPassword, totp.Generate(secret, time.Now()))
		require.NoError(t, err)

		ec, err := svc.KeyManager.Verifier.Verify(elevated)
		require.NoError(t, err)
		require.True(t, ec.Elevated)
		require.NotZero(t, ec.ElevatedAt)
		require.Contains(t, ec.AMR, jwtx.AMRStepUp)
		require.Equal(t, claims.SID, ec.SID)
		require.True(t, ec.HasElevation(jwtx.DefaultElevationWindow, time.Now()))
	})

	t.Run("wrong code does not elevate", func(t *testing.T) {
		_, err := svc.StepUp(ctx, claims, testPassword, "000000")
		require.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("wrong password does not elevate even with a valid code", func(t *testing.T) {
		_, err := svc.StepUp(ctx, claims, "wrong", totp.Generate(secret, time.Now()))
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("valid code alone does not elevate", func(t *testing.T) {
		_, err := svc.StepUp(ctx, claims, "", totp.Generate(secret, time.Now()))
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestStepUpPasswordOnly(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTokenService(t, st)
	seedUser(t, st, "grace")

	res, err := svc.Login(ctx, "grace", testPassword, "")
	require.NoError(t, err)
	claims, err := svc.KeyManager.Verifier.Verify(res.Pair.AccessToken)
	require.NoError(t, err)

	elevated, err := svc.StepUp(ctx, claims, testPassword, "")
	require.NoError(t, err)
	ec, err := svc.KeyManager.Verifier.Verify(elevated)
	require.NoError(t, err)
	require.True(t, ec.Elevated)

	_, err = svc.StepUp(ctx, claims, "wrong", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogoutRevokesSession(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTokenService(t, st)
	seedUser(t, st, "heidi")

	res, err := svc.Login(ctx, "heidi", testPassword, "")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, res.Pair.RefreshToken))

	_, err = svc.Refresh(ctx, res.Pair.RefreshToken, "")
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestChangePasswordRevokesTokens(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTokenService(t, st)
	user := seedUser(t, st, "ivan")
	users := &UserService{Store: st}

	res, err := svc.Login(ctx, "ivan", testPassword, "")
	require.NoError(t, err)

	require.NoError(t, users.ChangePassword(ctx, user.ID, testPassword, "a brand new passphrase"))

	_, err = svc.Refresh(ctx, res.Pair.RefreshToken, "")
	require.ErrorIs(t, err, ErrTokenRevoked)

	// Old password no longer works, new one does.
	_, err = svc.Login(ctx, "ivan", testPassword, "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	res2, err := svc.Login(ctx, "ivan", "a brand new passphrase", "")
	require.NoError(t, err)
	require.NotNil(t, res2.Pair)

	// Storing the fingerprint, not the token, means the raw value never
	// appears in the database.
	fp := cryptox.FingerprintToken(res2.Pair.RefreshToken)
	rt, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	require.NoError(t, err)
	require.NotEqual(t, res2.Pair.RefreshToken, rt.TokenHash)
}
