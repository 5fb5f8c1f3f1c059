package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	httpapi "github.com/anchorscm/anchor/internal/auth/http"
	"github.com/anchorscm/anchor/internal/auth/service"
	"github.com/anchorscm/anchor/internal/auth/store"
	"github.com/anchorscm/anchor/internal/auth/store/drivers/sqlite"
	"github.com/anchorscm/anchor/pkg/jwtx"
)

// End-to-end tests exercising the full stack in one process: the SDK talks
// HTTP to the real router, which runs the real services against a real
// SQLite file. No handler or store is faked.

const (
	testIssuer   = "anchor-e2e"
	testUsername = "admin"
	testPassword = "Admin123!longenough"
)

// testServer hosts the auth service over httptest. The handler sits behind
// a swappable pointer so tests can simulate a process restart (new signing
// keys, same database) without changing the base URL.
type testServer struct {
	URL   string
	Store store.Store

	dbPath string
	srv    *httptest.Server

	mu      sync.RWMutex
	handler http.Handler
}

func (ts *testServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ts.mu.RLock()
	h := ts.handler
	ts.mu.RUnlock()
	h.ServeHTTP(w, r)
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{dbPath: filepath.Join(t.TempDir(), "auth.db")}

	st, err := sqlite.NewStore(ts.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())
	ts.Store = st

	ts.mu.Lock()
	ts.handler = buildRouter(t, st)
	ts.mu.Unlock()

	ts.srv = httptest.NewServer(ts)
	t.Cleanup(ts.srv.Close)
	ts.URL = ts.srv.URL

	seedUser(t, st)
	return ts
}

// restart swaps in a fresh router with new ephemeral signing keys over the
// same database, the way a real service restart behaves.
func (ts *testServer) restart(t *testing.T) {
	t.Helper()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.handler = buildRouter(t, ts.Store)
}

func buildRouter(t *testing.T, st store.Store) http.Handler {
	t.Helper()

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Issuer:  testIssuer,
		NumKeys: 1,
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt := httpapi.NewRouter(km.KeySet, km.Verifier, st, "e2e", logger)
	rt.SecureCookies = false
	rt.Tokens = &service.TokenService{
		KeyManager: km,
		Store:      st,
		Issuer:     testIssuer,
		AccessTTL:  jwtx.DefaultAccessTokenTTL,
		RefreshTTL: jwtx.DefaultRefreshTokenTTL,
	}
	rt.TwoFactor = &service.TwoFactorService{Store: st, Issuer: testIssuer}
	rt.Users = &service.UserService{Store: st}
	rt.ApplyRoutes()
	return rt
}

func seedUser(t *testing.T, st store.Store) {
	t.Helper()
	svc := &service.UserService{Store: st}
	_, err := svc.Register(context.Background(), testUsername, "Administrator", testPassword)
	require.NoError(t, err)
}
