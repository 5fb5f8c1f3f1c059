package authsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// serveRefreshCookie mimics the server's cookie: HTTP-only, scoped to /auth.
func serveRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/auth",
		HttpOnly: true,
	})
}

func TestLoginCreatesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)

		var req LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "alice", req.Username)

		serveRefreshCookie(w, "refresh-1")
		writeJSON(w, http.StatusOK, TokenResponse{
			AccessToken: "access-1",
			TokenType:   "Bearer",
			ExpiresIn:   300,
		})
	}))
	defer srv.Close()

	client := NewSDKClient(srv.URL)
	session, err := client.Login(context.Background(), "alice", "password123")
	require.NoError(t, err)
	defer session.Close()

	require.Equal(t, "access-1", session.AccessToken())
	require.Equal(t, "refresh-1", session.RefreshToken(), "refresh token picked up from the cookie jar")
	require.False(t, session.Expired())
}

// A stored token resumes via the body once; every rotation after that rides
// the cookie jar and the server never echoes the token in a body.
func TestResumeSessionUsesCookieForRefresh(t *testing.T) {
	var mu sync.Mutex
	refreshCalls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/refresh", r.URL.Path)
		mu.Lock()
		refreshCalls++
		n := refreshCalls
		mu.Unlock()

		var req RefreshRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if n == 1 {
			require.Equal(t, "stored-token", req.RefreshToken)
			serveRefreshCookie(w, "rotated-1")
			writeJSON(w, http.StatusOK, TokenResponse{
				AccessToken: "access-1",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
			return
		}

		require.Empty(t, req.RefreshToken)
		c, err := r.Cookie(RefreshCookieName)
		require.NoError(t, err)
		require.Equal(t, "rotated-1", c.Value)
		serveRefreshCookie(w, "rotated-2")
		writeJSON(w, http.StatusOK, TokenResponse{
			AccessToken: "access-2",
			TokenType:   "Bearer",
			ExpiresIn:   300,
		})
	}))
	defer srv.Close()

	client := NewSDKClient(srv.URL)
	session, err := client.ResumeSession(context.Background(), "stored-token")
	require.NoError(t, err)
	defer session.Close()

	require.Equal(t, "access-1", session.AccessToken())
	require.Equal(t, "rotated-1", session.RefreshToken())

	require.NoError(t, session.refresh(context.Background()))
	require.Equal(t, "access-2", session.AccessToken())
	require.Equal(t, "rotated-2", session.RefreshToken())
}

func TestLoginWrongPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:            ErrorCodeInvalidCredentials,
			ErrorDescription: "invalid credentials",
		})
	}))
	defer srv.Close()

	client := NewSDKClient(srv.URL)
	_, err := client.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)
	require.True(t, IsCode(err, ErrorCodeInvalidCredentials))
}

func TestTwoFactorChallengeFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			writeJSON(w, http.StatusConflict, map[string]string{
				"error":           ErrorCodeTwoFactorRequired,
				"challenge_token": "chal-1",
				"method":          "totp",
			})
		case "/auth/login/2fa":
			var req TwoFactorLoginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "chal-1", req.ChallengeToken)
			require.Equal(t, "123456", req.Code)
			writeJSON(w, http.StatusOK, TokenResponse{
				AccessToken: "access-2fa",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewSDKClient(srv.URL)

	_, err := client.Login(context.Background(), "alice", "password123")
	var challenge *TwoFactorRequiredError
	require.ErrorAs(t, err, &challenge)
	require.Equal(t, "chal-1", challenge.ChallengeToken)
	require.Equal(t, "totp", challenge.Method)

	session, err := client.CompleteTwoFactorLogin(context.Background(), challenge.ChallengeToken, "123456")
	require.NoError(t, err)
	defer session.Close()
	require.Equal(t, "access-2fa", session.AccessToken())
}

// The server expires the first access token; dispatch must refresh once and
// retry the original request without the caller noticing.
func TestDispatchRecoversFromExpiredToken(t *testing.T) {
	var mu sync.Mutex
	refreshCalls := 0
	protectedCalls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			mu.Lock()
			refreshCalls++
			mu.Unlock()
			writeJSON(w, http.StatusOK, TokenResponse{
				AccessToken: "fresh",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		case "/api/data":
			mu.Lock()
			protectedCalls++
			mu.Unlock()
			if bearerToken(r) != "fresh" {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: ErrorCodeTokenExpired})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"value": "ok"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewSDKClient(srv.URL)
	session := newSession(client, &TokenResponse{
		AccessToken: "stale",
		TokenType:   "Bearer",
		ExpiresIn:   300,
	})
	defer session.Close()

	var out map[string]string
	require.NoError(t, session.DoJSON(context.Background(), http.MethodGet, "/api/data", nil, &out))
	require.Equal(t, "ok", out["value"])

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, refreshCalls)
	require.Equal(t, 2, protectedCalls, "original attempt plus exactly one retry")
	require.Equal(t, "fresh", session.AccessToken())
}

// A second 401 after the refresh is surfaced, not retried again.
func TestDispatchRetriesOnlyOnce(t *testing.T) {
	var mu sync.Mutex
	protectedCalls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			writeJSON(w, http.StatusOK, TokenResponse{
				AccessToken: "fresh",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		case "/api/data":
			mu.Lock()
			protectedCalls++
			mu.Unlock()
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: ErrorCodeTokenExpired})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewSDKClient(srv.URL)
	session := newSession(client, &TokenResponse{
		AccessToken: "stale",
		TokenType:   "Bearer",
		ExpiresIn:   300,
	})
	defer session.Close()

	err := session.DoJSON(context.Background(), http.MethodGet, "/api/data", nil, nil)
	require.True(t, IsCode(err, ErrorCodeTokenExpired))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, protectedCalls)
}

// A rejected refresh token kills the session for good: no further network
// calls, just ErrSessionExpired.
func TestRefreshRejectionTearsDownSession(t *testing.T) {
	var mu sync.Mutex
	refreshCalls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			mu.Lock()
			refreshCalls++
			mu.Unlock()
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: ErrorCodeTokenRevoked})
		case "/api/data":
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: ErrorCodeTokenExpired})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewSDKClient(srv.URL)
	session := newSession(client, &TokenResponse{
		AccessToken: "stale",
		TokenType:   "Bearer",
		ExpiresIn:   300,
	})
	defer session.Close()

	err := session.DoJSON(context.Background(), http.MethodGet, "/api/data", nil, nil)
	require.ErrorIs(t, err, ErrSessionExpired)
	require.True(t, session.Expired())

	err = session.DoJSON(context.Background(), http.MethodGet, "/api/data", nil, nil)
	require.ErrorIs(t, err, ErrSessionExpired)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, refreshCalls, "a dead session stops calling the server")
}

// A pair already inside the refresh margin triggers the background rotation
// without any dispatch.
func TestProactiveBackgroundRefresh(t *testing.T) {
	var mu sync.Mutex
	refreshCalls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/refresh", r.URL.Path)
		mu.Lock()
		refreshCalls++
		mu.Unlock()
		writeJSON(w, http.StatusOK, TokenResponse{
			AccessToken: "fresh",
			TokenType:   "Bearer",
			ExpiresIn:   300,
		})
	}))
	defer srv.Close()

	client := NewSDKClient(srv.URL)
	session := newSession(client, &TokenResponse{
		AccessToken: "stale",
		TokenType:   "Bearer",
		ExpiresIn:   10,
	})
	defer session.Close()

	require.Eventually(t, func() bool {
		return session.AccessToken() == "fresh"
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, refreshCalls, 1)
}

func TestElevationReplay(t *testing.T) {
	var mu sync.Mutex
	stepUpCalls := 0
	protectedCalls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/step-up":
			mu.Lock()
			stepUpCalls++
			mu.Unlock()
			var req StepUpRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "hunter2hunter2", req.Password)
			require.Equal(t, "654321", req.Code)
			writeJSON(w, http.StatusOK, StepUpResponse{
				AccessToken: "elevated",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		case "/user/2fa/disable":
			mu.Lock()
			protectedCalls++
			mu.Unlock()
			if bearerToken(r) != "elevated" {
				writeJSON(w, http.StatusForbidden, ErrorResponse{Error: ErrorCodeElevationRequired})
				return
			}
			writeJSON(w, http.StatusOK, TwoFactorStatusResponse{Enabled: false})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewSDKClient(srv.URL)
	session := newSession(client, &TokenResponse{
		AccessToken: "plain",
		TokenType:   "Bearer",
		ExpiresIn:   300,
	})
	defer session.Close()

	status, err := session.TwoFactorDisable(context.Background(), "hunter2hunter2", "654321")
	require.NoError(t, err)
	require.False(t, status.Enabled)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, stepUpCalls)
	require.Equal(t, 2, protectedCalls, "denied attempt, then exactly one replay")
	require.Equal(t, "elevated", session.AccessToken())
}

func TestLogoutTearsDownSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			serveRefreshCookie(w, "refresh-1")
			writeJSON(w, http.StatusOK, TokenResponse{
				AccessToken: "access-1",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		case "/auth/logout":
			// The refresh token rides the cookie, not the body.
			c, err := r.Cookie(RefreshCookieName)
			require.NoError(t, err)
			require.Equal(t, "refresh-1", c.Value)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewSDKClient(srv.URL)
	session, err := client.Login(context.Background(), "alice", "password123")
	require.NoError(t, err)

	require.NoError(t, session.Logout(context.Background()))
	require.True(t, session.Expired())

	err = session.DoJSON(context.Background(), http.MethodGet, "/api/data", nil, nil)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestHealthEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/livez":
			writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: "test"})
		case "/readyz":
			writeJSON(w, http.StatusOK, HealthResponse{
				Status: "ok",
				Checks: &HealthChecks{Database: "ok", Signer: "ok"},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewSDKClient(srv.URL)

	live, err := client.Livez(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)

	ready, err := client.Readyz(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Database)
}
