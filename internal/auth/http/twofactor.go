package http

import (
	"errors"
	"net/http"

	"github.com/anchorscm/anchor/internal/auth/service"
	"github.com/anchorscm/anchor/pkg/authsdk"
	"github.com/anchorscm/anchor/pkg/httpx"
	"github.com/anchorscm/anchor/pkg/slogx"
)

// HandleTwoFactorSetup starts (or restarts) enrollment for the current user
// and returns the secret plus a provisioning URI for the authenticator app.
func (rt *Router) HandleTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromCtx(r.Context())

	enroll, err := rt.TwoFactor.StartEnrollment(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrTwoFactorEnabled) {
			authsdk.ErrTwoFactorEnabled.WriteError(w)
			return
		}
		slogx.FromContext(r.Context()).Error("two-factor setup failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TwoFactorSetupResponse{
		Secret:  enroll.Secret,
		URI:     enroll.URI,
		Issuer:  enroll.Issuer,
		Account: enroll.Account,
	})
}

// HandleTwoFactorEnable confirms a pending enrollment with a code generated
// from the new secret. Only after this succeeds does login demand the code.
func (rt *Router) HandleTwoFactorEnable(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromCtx(r.Context())

	var req authsdk.TwoFactorEnableRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}
	if req.Code == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := rt.TwoFactor.ConfirmEnrollment(r.Context(), userID, req.Code); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCode):
			authsdk.ErrInvalidCode.WriteError(w)
		case errors.Is(err, service.ErrTwoFactorEnabled):
			authsdk.ErrTwoFactorEnabled.WriteError(w)
		case errors.Is(err, service.ErrNoPendingEnrollment):
			authsdk.ErrNoPendingEnrollment.WriteError(w)
		default:
			slogx.FromContext(r.Context()).Error("two-factor enable failed", "error", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	rt.writeTwoFactorStatus(w, r, userID)
}

// HandleTwoFactorDisable turns two-factor off. The route is gated behind a
// fresh elevation grant, so a stolen access token alone cannot reach it.
func (rt *Router) HandleTwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromCtx(r.Context())

	if err := rt.TwoFactor.Disable(r.Context(), userID); err != nil {
		if errors.Is(err, service.ErrTwoFactorNotEnabled) {
			authsdk.ErrTwoFactorNotEnabled.WriteError(w)
			return
		}
		slogx.FromContext(r.Context()).Error("two-factor disable failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	rt.writeTwoFactorStatus(w, r, userID)
}

// HandleTwoFactorStatus reports the current user's two-factor state.
func (rt *Router) HandleTwoFactorStatus(w http.ResponseWriter, r *http.Request) {
	rt.writeTwoFactorStatus(w, r, httpx.UserIDFromCtx(r.Context()))
}

func (rt *Router) writeTwoFactorStatus(w http.ResponseWriter, r *http.Request, userID string) {
	status, err := rt.TwoFactor.Status(r.Context(), userID)
	if err != nil {
		slogx.FromContext(r.Context()).Error("two-factor status failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.TwoFactorStatusResponse{
		Enabled:      status.Enabled,
		PendingSetup: status.PendingSetup,
		EnabledAt:    status.EnabledAt,
	})
}
