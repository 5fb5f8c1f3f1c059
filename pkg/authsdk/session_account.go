package authsdk

import (
	"context"
	"net/http"
)

// TwoFactorSetup starts (or restarts) TOTP enrollment and returns the
// secret plus a provisioning URI for the authenticator app.
func (s *Session) TwoFactorSetup(ctx context.Context) (*TwoFactorSetupResponse, error) {
	var setup TwoFactorSetupResponse
	if err := s.DoJSON(ctx, http.MethodPost, "/user/2fa/setup", nil, &setup); err != nil {
		return nil, err
	}
	return &setup, nil
}

// TwoFactorEnable confirms a pending enrollment with a code generated from
// the new secret.
func (s *Session) TwoFactorEnable(ctx context.Context, code string) (*TwoFactorStatusResponse, error) {
	var status TwoFactorStatusResponse
	err := s.DoJSON(ctx, http.MethodPost, "/user/2fa/enable",
		TwoFactorEnableRequest{Code: code}, &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// TwoFactorDisable turns two-factor off. The endpoint demands a fresh
// elevation grant, so the password and a current code are verified on the
// way in.
func (s *Session) TwoFactorDisable(ctx context.Context, password, code string) (*TwoFactorStatusResponse, error) {
	var status TwoFactorStatusResponse
	err := s.DoElevatedJSON(ctx, http.MethodPost, "/user/2fa/disable",
		nil, &status, password, code)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// TwoFactorStatus reports the account's two-factor state.
func (s *Session) TwoFactorStatus(ctx context.Context) (*TwoFactorStatusResponse, error) {
	var status TwoFactorStatusResponse
	if err := s.DoJSON(ctx, http.MethodGet, "/user/2fa/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ChangePassword swaps the account password, stepping up first since the
// endpoint demands a fresh elevation grant. Every refresh token the account
// holds is revoked on success, this session's included.
func (s *Session) ChangePassword(ctx context.Context, currentPassword, newPassword, code string) error {
	return s.DoElevatedJSON(ctx, http.MethodPost, "/user/password",
		ChangePasswordRequest{CurrentPassword: currentPassword, NewPassword: newPassword},
		nil, currentPassword, code)
}
