package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anchorscm/anchor/pkg/httpx"
	"github.com/anchorscm/anchor/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://auth.test"

func newTestKeys(t *testing.T) *jwtx.KeyManager {
	t.Helper()
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Issuer:  testIssuer,
		NumKeys: 1,
	})
	require.NoError(t, err)
	return km
}

func mintToken(t *testing.T, km *jwtx.KeyManager, spec jwtx.AccessTokenSpec) string {
	t.Helper()
	spec.Issuer = testIssuer
	if spec.Now.IsZero() {
		spec.Now = time.Now()
	}
	if spec.TTL == 0 {
		spec.TTL = jwtx.DefaultAccessTokenTTL
	}
	token, err := km.GetSigner().Sign(jwtx.NewAccessClaims(spec))
	require.NoError(t, err)
	return token
}

func echoSubject() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(httpx.UserIDFromCtx(r.Context())))
	})
}

func TestAuthnMiddleware(t *testing.T) {
	km := newTestKeys(t)
	h := httpx.Chain(echoSubject(), httpx.AuthnMiddleware(km.Verifier))

	t.Run("valid token passes and injects context", func(t *testing.T) {
		token := mintToken(t, km, jwtx.AccessTokenSpec{
			Subject:   "user-1",
			SessionID: "sess-1",
			Username:  "alice",
			AMR:       []string{jwtx.AMRPassword},
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "user-1", rec.Body.String())
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not.a.jwt")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token reports token_expired", func(t *testing.T) {
		token := mintToken(t, km, jwtx.AccessTokenSpec{
			Subject: "user-1",
			Now:     time.Now().Add(-time.Hour),
			TTL:     time.Minute,
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Body.String(), "token_expired")
	})

	t.Run("token from foreign key is rejected", func(t *testing.T) {
		other := newTestKeys(t)
		token := mintToken(t, other, jwtx.AccessTokenSpec{Subject: "user-1"})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireElevation(t *testing.T) {
	km := newTestKeys(t)
	h := httpx.Chain(echoSubject(),
		httpx.AuthnMiddleware(km.Verifier),
		httpx.RequireElevation(jwtx.DefaultElevationWindow),
	)

	do := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("fresh elevation passes", func(t *testing.T) {
		token := mintToken(t, km, jwtx.AccessTokenSpec{
			Subject:  "user-1",
			Elevated: true,
		})

		rec := do(token)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unelevated token gets elevation_required", func(t *testing.T) {
		token := mintToken(t, km, jwtx.AccessTokenSpec{Subject: "user-1"})

		rec := do(token)
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Contains(t, rec.Body.String(), "elevation_required")
	})

	t.Run("stale elevation gets elevation_expired", func(t *testing.T) {
		token := mintToken(t, km, jwtx.AccessTokenSpec{
			Subject:  "user-1",
			Elevated: true,
			Now:      time.Now().Add(-6 * time.Minute),
			TTL:      time.Hour,
		})

		rec := do(token)
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Contains(t, rec.Body.String(), "elevation_expired")
	})
}
