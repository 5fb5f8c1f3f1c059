package http

import (
	"errors"
	"net/http"

	"github.com/anchorscm/anchor/internal/auth/service"
	"github.com/anchorscm/anchor/pkg/authsdk"
	"github.com/anchorscm/anchor/pkg/httpx"
	"github.com/anchorscm/anchor/pkg/slogx"
)

// HandleLogin starts a session from username and password. Accounts with
// two-factor enabled get a 409 challenge instead of tokens; everyone else
// gets a token pair with the refresh token mirrored into the HTTP-only
// cookie for browser clients.
func (rt *Router) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}
	if req.Username == "" || req.Password == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	result, err := rt.Tokens.Login(r.Context(), req.Username, req.Password, Fingerprint(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			authsdk.ErrInvalidCredentials.WriteError(w)
			return
		}
		slogx.FromContext(r.Context()).Error("login failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	if result.Challenge != nil {
		challenge := &authsdk.TwoFactorRequiredError{
			ChallengeToken: result.Challenge.ChallengeToken,
			Method:         result.Challenge.Method,
		}
		challenge.WriteError(w)
		return
	}

	rt.writeTokenPair(w, result.Pair)
}

// HandleTwoFactorLogin completes a pending login challenge with a TOTP code.
func (rt *Router) HandleTwoFactorLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.TwoFactorLoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidJSONBody.WriteError(w)
		return
	}
	if req.ChallengeToken == "" || req.Code == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := rt.Tokens.CompleteLogin(r.Context(), req.ChallengeToken, req.Code, Fingerprint(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCode):
			authsdk.ErrInvalidCode.WriteError(w)
		case errors.Is(err, service.ErrChallengeExpired):
			authsdk.ErrChallengeExpired.WriteError(w)
		case errors.Is(err, service.ErrTooManyAttempts):
			authsdk.ErrTooManyAttempts.WriteError(w)
		case errors.Is(err, service.ErrInvalidCredentials):
			authsdk.ErrInvalidCredentials.WriteError(w)
		default:
			slogx.FromContext(r.Context()).Error("two-factor login failed", "error", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	rt.writeTokenPair(w, pair)
}
