package http

import (
	"errors"
	"net/http"

	"github.com/anchorscm/anchor/internal/auth/service"
	"github.com/anchorscm/anchor/pkg/authsdk"
	"github.com/anchorscm/anchor/pkg/httpx"
	"github.com/anchorscm/anchor/pkg/slogx"
)

// HandleStepUp re-verifies the caller's password (and code, when two-factor
// is enabled) and returns a fresh access token carrying the elevation grant.
// The refresh chain is not touched, so the session itself continues as before.
func (rt *Router) HandleStepUp(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromCtx(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.StepUpRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}
	if req.Password == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	accessToken, err := rt.Tokens.StepUp(r.Context(), claims, req.Password, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCode):
			authsdk.ErrInvalidCode.WriteError(w)
		case errors.Is(err, service.ErrInvalidCredentials):
			authsdk.ErrInvalidCredentials.WriteError(w)
		default:
			slogx.FromContext(r.Context()).Error("step-up failed", "error", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.StepUpResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(rt.Tokens.AccessTTL.Seconds()),
	})
}
