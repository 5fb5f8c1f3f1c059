package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/anchorscm/anchor/internal/auth/service"
	"github.com/anchorscm/anchor/pkg/authsdk"
	"github.com/anchorscm/anchor/pkg/httpx"
	"github.com/anchorscm/anchor/pkg/slogx"
)

// HandleRefresh rotates the refresh token and returns a fresh pair. The
// presented token may come from the JSON body or the cookie; the body wins.
// Any rejection clears the cookie so the client does not keep replaying a
// dead token.
func (rt *Router) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	// An empty body is fine here: cookie-based clients send no JSON at all.
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}

	token := refreshTokenFromRequest(r, req.RefreshToken)
	if token == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := rt.Tokens.Refresh(r.Context(), token, Fingerprint(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenRevoked):
			clearRefreshCookie(w, rt.SecureCookies)
			authsdk.ErrTokenRevoked.WriteError(w)
		case errors.Is(err, service.ErrInvalidRefresh):
			clearRefreshCookie(w, rt.SecureCookies)
			authsdk.ErrTokenExpired.WriteError(w)
		default:
			slogx.FromContext(r.Context()).Error("refresh failed", "error", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	rt.writeTokenPair(w, pair)
}
