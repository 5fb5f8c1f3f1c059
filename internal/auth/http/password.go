package http

import (
	"errors"
	"net/http"

	"github.com/anchorscm/anchor/internal/auth/service"
	"github.com/anchorscm/anchor/pkg/authsdk"
	"github.com/anchorscm/anchor/pkg/httpx"
	"github.com/anchorscm/anchor/pkg/slogx"
)

// HandleChangePassword swaps the account password after re-checking the
// current one. Every refresh token the user holds is revoked, so other
// devices drop back to the login screen once their access tokens age out.
func (rt *Router) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromCtx(r.Context())

	var req authsdk.ChangePasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := rt.Users.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			authsdk.ErrInvalidCredentials.WriteError(w)
		case errors.Is(err, service.ErrWeakPassword):
			authsdk.ErrWeakPassword.WriteError(w)
		default:
			slogx.FromContext(r.Context()).Error("change password failed", "error", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	clearRefreshCookie(w, rt.SecureCookies)
	w.WriteHeader(http.StatusNoContent)
}
