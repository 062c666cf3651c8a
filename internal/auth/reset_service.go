// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// PasswordResetService handles the forgot-password and change-password
// flow.
type PasswordResetService struct {
	users  UserRepository
	tokens TokenStore
	hasher PasswordHasher
	sender EmailSender
	appURL string
	logger *slog.Logger
}

// NewPasswordResetService creates a PasswordResetService with a no-op
// logger. Returns an error if any required dependency is nil.
func NewPasswordResetService(users UserRepository, tokens TokenStore, hasher PasswordHasher, sender EmailSender, appURL string) (*PasswordResetService, error) {
	return NewPasswordResetServiceWithLogger(users, tokens, hasher, sender, appURL, slog.New(slog.DiscardHandler))
}

// NewPasswordResetServiceWithLogger creates a PasswordResetService with
// the provided logger.
func NewPasswordResetServiceWithLogger(users UserRepository, tokens TokenStore, hasher PasswordHasher, sender EmailSender, appURL string, logger *slog.Logger) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if sender == nil {
		return nil, oops.Errorf("email sender is required")
	}
	if appURL == "" {
		return nil, oops.Errorf("app URL is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &PasswordResetService{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		sender: sender,
		appURL: strings.TrimRight(appURL, "/"),
		logger: logger,
	}, nil
}

// RequestReset mails a reset link if the email belongs to a user. It
// reports success either way so callers cannot enumerate accounts.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	token, err := IssueToken(ctx, s.tokens, ForgotPasswordPrefix, user.ID)
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "issue reset token").
			Wrap(err)
	}

	resetURL := fmt.Sprintf("%s/change-password/%s", s.appURL, token)
	body := fmt.Sprintf("Hello %s,\r\n\r\nYou can choose a new password here:\r\n%s\r\n\r\nThe link expires in 24 hours. If you did not request this, ignore this mail.", user.FullName(), resetURL)
	if err := s.sender.Send(ctx, user.Email, "Reset your password", body); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "send reset email").
			Wrap(err)
	}

	s.logger.Info("password reset requested", "user_id", user.ID.String())
	return nil
}

// ChangePassword redeems a reset token and stores the new password.
// Returns ErrInvalidToken for an absent token and ErrNotFound when the
// referenced user vanished; the token is consumed in both cases.
func (s *PasswordResetService) ChangePassword(ctx context.Context, token, newPassword string) (*User, error) {
	if err := ValidatePassword(newPassword); err != nil {
		return nil, err
	}

	userID, err := RedeemToken(ctx, s.tokens, ForgotPasswordPrefix, token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, oops.Code("RESET_CHANGE_FAILED").
			With("operation", "get user by id").
			With("user_id", userID.String()).
			Wrap(err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, oops.Code("RESET_CHANGE_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return nil, oops.Code("RESET_CHANGE_FAILED").
			With("operation", "update password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	user.PasswordHash = hash

	s.logger.Info("password changed", "user_id", user.ID.String())
	return user, nil
}
