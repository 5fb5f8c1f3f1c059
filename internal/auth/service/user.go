package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anchorscm/anchor/internal/auth/domain"
	"github.com/anchorscm/anchor/internal/auth/store"
	"github.com/anchorscm/anchor/pkg/cryptox"
	"github.com/anchorscm/anchor/pkg/idx"
)

var (
	ErrUsernameTaken   = errors.New("username already taken")
	ErrWeakPassword    = errors.New("password too short")
	ErrInvalidUsername = errors.New("invalid username")
)

// MinPasswordLength matches what the web frontend enforces.
const MinPasswordLength = 8

type UserService struct {
	Store store.Store
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, userID)
}

// Register creates a new account with an argon2id password hash.
func (s *UserService) Register(ctx context.Context, username, displayName, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.ContainsAny(username, " \t\n") {
		return domain.User{}, ErrInvalidUsername
	}
	if len(password) < MinPasswordLength {
		return domain.User{}, ErrWeakPassword
	}

	if _, err := s.Store.Users().GetUserByUsername(ctx, username); err == nil {
		return domain.User{}, ErrUsernameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hash,
	}
	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// ChangePassword re-verifies the current password, swaps in the new hash,
// and revokes every refresh token the user holds, all in one transaction.
// Active sessions die with their next refresh.
func (s *UserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := cryptox.VerifyPassword(currentPassword, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, userID, hash); err != nil {
			return err
		}
		return tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, userID)
	})
}

// DeleteUser removes the account; refresh tokens and challenges cascade.
func (s *UserService) DeleteUser(ctx context.Context, userID string) error {
	return s.Store.Users().DeleteUser(ctx, userID)
}
