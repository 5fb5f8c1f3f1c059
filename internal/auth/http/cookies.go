package http

import (
	"net/http"
	"time"

	"github.com/anchorscm/anchor/pkg/authsdk"
)

// RefreshCookieName is the HTTP-only cookie carrying the refresh token. It
// is the only place the client ever receives the token; response bodies
// carry just the access token. The cookie is scoped to /auth so it only
// travels to the endpoints that can redeem it.
const RefreshCookieName = authsdk.RefreshCookieName

const refreshCookiePath = "/auth"

func setRefreshCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// refreshTokenFromRequest prefers an explicit body token, falling back to
// the cookie for browser clients.
func refreshTokenFromRequest(r *http.Request, bodyToken string) string {
	if bodyToken != "" {
		return bodyToken
	}
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		return c.Value
	}
	return ""
}
