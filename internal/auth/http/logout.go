package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/anchorscm/anchor/pkg/authsdk"
	"github.com/anchorscm/anchor/pkg/httpx"
	"github.com/anchorscm/anchor/pkg/slogx"
)

// HandleLogout revokes the rotation chain behind the presented refresh token
// and clears the cookie. Unknown or missing tokens still succeed: a second
// logout should be as quiet as the first.
func (rt *Router) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}

	if token := refreshTokenFromRequest(r, req.RefreshToken); token != "" {
		if err := rt.Tokens.Logout(r.Context(), token); err != nil {
			slogx.FromContext(r.Context()).Error("logout failed", "error", err)
			authsdk.ErrServerError.WriteError(w)
			return
		}
	}

	clearRefreshCookie(w, rt.SecureCookies)
	w.WriteHeader(http.StatusNoContent)
}
