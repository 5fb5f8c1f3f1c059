package authsdk

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned once the session's refresh token has been
// rejected. The session cannot recover; log in again.
var ErrSessionExpired = errors.New("authsdk: session expired, log in again")

// refreshMargin is how long before access-token expiry the background
// refresh fires. It also pads the on-demand expiry check, so a token about
// to lapse mid-flight is rotated first.
const refreshMargin = 30 * time.Second

// Session is an authenticated session with transparent token rotation.
//
// A background timer rotates the pair shortly before the access token
// expires, and every dispatch path falls back to an on-demand refresh, so
// callers never see routine expiry. Concurrent refresh attempts collapse
// into a single request. The refresh token itself lives in the client's
// cookie jar; the session only tracks the access token.
type Session struct {
	client *SDKClient

	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time
	expired     bool

	timer *time.Timer
	group singleflight.Group
}

// newSession creates a session from a token response and arms the
// background refresh timer.
func newSession(client *SDKClient, tokens *TokenResponse) *Session {
	s := &Session{client: client}
	s.adopt(tokens)
	return s
}

// AdoptTokens swaps in an access token obtained out of band, for example
// from another process sharing the same credential store, and re-arms the
// background refresh around the new expiry.
func (s *Session) AdoptTokens(tokens *TokenResponse) {
	s.adopt(tokens)
}

// adopt swaps in a fresh token pair and re-arms the refresh timer.
// Callers must not hold s.mu.
func (s *Session) adopt(tokens *TokenResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessToken = tokens.AccessToken
	s.expiresAt = time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second)

	if s.timer != nil {
		s.timer.Stop()
	}
	wait := time.Until(s.expiresAt) - refreshMargin
	if wait < 0 {
		wait = 0
	}
	s.timer = time.AfterFunc(wait, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = s.refresh(ctx)
	})
}

// refresh rotates the token pair. Concurrent callers (the background timer,
// several dispatches hitting a 401 at once) share a single request.
func (s *Session) refresh(ctx context.Context) error {
	_, err, _ := s.group.Do("refresh", func() (any, error) {
		s.mu.RLock()
		expired := s.expired
		s.mu.RUnlock()

		if expired {
			return nil, ErrSessionExpired
		}

		// The cookie jar supplies the refresh token.
		var tokens TokenResponse
		err := s.client.postJSON(ctx, "/auth/refresh", RefreshRequest{}, &tokens)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				// The server rejected the refresh token itself. Nothing
				// left to retry with.
				s.teardown()
				return nil, ErrSessionExpired
			}
			return nil, err
		}

		s.adopt(&tokens)
		return nil, nil
	})
	return err
}

// getValidToken returns an access token, refreshing first when the current
// one is at or past the margin.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.expired {
		s.mu.RUnlock()
		return "", ErrSessionExpired
	}
	if time.Now().Before(s.expiresAt.Add(-refreshMargin)) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	if err := s.refresh(ctx); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken, nil
}

func (s *Session) teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired = true
	s.accessToken = ""
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// AccessToken returns the current access token without refreshing.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the refresh token currently held in the client's
// cookie jar, for callers that persist sessions across restarts and resume
// with ResumeSession. Treat it like a password.
func (s *Session) RefreshToken() string {
	return s.client.refreshCookieValue()
}

// Expired reports whether the session has been torn down.
func (s *Session) Expired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expired
}

// Close stops the background refresh timer without contacting the server.
// The refresh chain stays valid; use Logout to revoke it.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Logout revokes the session's refresh chain on the server and tears the
// session down locally. The refresh token travels in the cookie.
func (s *Session) Logout(ctx context.Context) error {
	err := s.client.postNoContent(ctx, "/auth/logout", RefreshRequest{})
	s.teardown()
	return err
}
