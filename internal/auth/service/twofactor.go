package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anchorscm/anchor/internal/auth/domain"
	"github.com/anchorscm/anchor/internal/auth/store"
	"github.com/anchorscm/anchor/pkg/totp"
)

var (
	ErrTwoFactorEnabled    = errors.New("two-factor already enabled for this user")
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled for this user")
	ErrNoPendingEnrollment = errors.New("no enrollment in progress")
)

type TwoFactorService struct {
	Store  store.Store
	Issuer string // Issuer name for provisioning URIs (e.g., "Anchor")
}

// StartEnrollment generates a fresh TOTP secret for the user and stores it as
// pending. Starting again simply replaces the pending secret: the newest
// enrollment is the only one that can be confirmed.
func (s *TwoFactorService) StartEnrollment(ctx context.Context, userID string) (domain.TwoFactorEnrollResponse, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.TwoFactorEnrollResponse{}, fmt.Errorf("load user: %w", err)
	}
	if user.TwoFactorActive() {
		return domain.TwoFactorEnrollResponse{}, ErrTwoFactorEnabled
	}

	secret, err := totp.NewSecret()
	if err != nil {
		return domain.TwoFactorEnrollResponse{}, err
	}

	if err := s.Store.Users().SetPendingTOTPSecret(ctx, userID, secret); err != nil {
		return domain.TwoFactorEnrollResponse{}, fmt.Errorf("store pending secret: %w", err)
	}

	return domain.TwoFactorEnrollResponse{
		Secret:  secret,
		URI:     totp.KeyURI(s.Issuer, user.Username, secret),
		Issuer:  s.Issuer,
		Account: user.Username,
	}, nil
}

// ConfirmEnrollment verifies a code against the pending secret and, on
// success, promotes it to the confirmed secret. A rejected code discards the
// pending secret entirely: the user has to restart enrollment and gets a
// fresh secret, so a secret that failed confirmation can never be confirmed
// later.
func (s *TwoFactorService) ConfirmEnrollment(ctx context.Context, userID, code string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user.TwoFactorActive() {
		return ErrTwoFactorEnabled
	}
	if user.PendingTOTPSecret == nil || *user.PendingTOTPSecret == "" {
		return ErrNoPendingEnrollment
	}

	if !totp.Verify(*user.PendingTOTPSecret, code, time.Now()) {
		if err := s.Store.Users().ClearPendingTOTPSecret(ctx, userID); err != nil {
			return fmt.Errorf("discard pending secret: %w", err)
		}
		return ErrInvalidCode
	}

	if err := s.Store.Users().EnableTOTP(ctx, userID, time.Now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Pending secret vanished between check and promote.
			return ErrNoPendingEnrollment
		}
		return fmt.Errorf("enable totp: %w", err)
	}
	return nil
}

// Disable removes two-factor from the account. Callers gate this behind a
// fresh step-up grant; the service just applies the change.
func (s *TwoFactorService) Disable(ctx context.Context, userID string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !user.TwoFactorActive() {
		return ErrTwoFactorNotEnabled
	}
	return s.Store.Users().DisableTOTP(ctx, userID)
}

// Status reports the account's two-factor state.
func (s *TwoFactorService) Status(ctx context.Context, userID string) (domain.TwoFactorStatus, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.TwoFactorStatus{}, err
	}

	status := domain.TwoFactorStatus{
		Enabled:      user.TwoFactorActive(),
		PendingSetup: user.PendingTOTPSecret != nil && *user.PendingTOTPSecret != "",
	}
	if user.TOTPEnabled != nil {
		status.EnabledAt = user.TOTPEnabled.UTC().Format(time.RFC3339)
	}
	return status, nil
}
