// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// EmailSender delivers transactional mail. Implementations live in
// internal/mail; the service only needs the one method.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Service provides registration, login, and email confirmation.
type Service struct {
	users  UserRepository
	tokens TokenStore
	hasher PasswordHasher
	sender EmailSender
	appURL string
	logger *slog.Logger
}

// NewService creates a Service with a no-op logger.
// Returns an error if any required dependency is nil.
func NewService(users UserRepository, tokens TokenStore, hasher PasswordHasher, sender EmailSender, appURL string) (*Service, error) {
	return NewServiceWithLogger(users, tokens, hasher, sender, appURL, slog.New(slog.DiscardHandler))
}

// NewServiceWithLogger creates a Service with the provided logger.
func NewServiceWithLogger(users UserRepository, tokens TokenStore, hasher PasswordHasher, sender EmailSender, appURL string, logger *slog.Logger) (*Service, error) {
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
	return &Service{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		sender: sender,
		appURL: strings.TrimRight(appURL, "/"),
		logger: logger,
	}, nil
}

// dummyPasswordHash is verified against when a login names an unknown
// email, keeping response time consistent with the known-email path.
// This is NOT a real credential and will never match any password.
//
//nolint:gosec // G101: intentionally fake hash for timing equalization, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Register validates input, persists a new unconfirmed user, and mails
// a confirmation link. A duplicate email fails with a FieldErrors, the
// same class as any other validation failure.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	// Pre-check for a friendlier error; the repository unique
	// constraint still backstops concurrent registrations.
	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, emailTakenErrors()
	} else if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "check email availability").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(in.FirstName, in.LastName, in.Email, hash)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "construct user").
			Wrap(err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, emailTakenErrors()
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "persist user").
			Wrap(err)
	}

	token, err := IssueToken(ctx, s.tokens, ConfirmEmailPrefix, user.ID)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "issue confirmation token").
			Wrap(err)
	}

	confirmURL := fmt.Sprintf("%s/confirm/%s", s.appURL, token)
	body := fmt.Sprintf("Welcome, %s!\r\n\r\nConfirm your email address by visiting:\r\n%s\r\n\r\nThe link expires in 24 hours.", user.FullName(), confirmURL)
	if err := s.sender.Send(ctx, user.Email, "Confirm your email", body); err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "send confirmation email").
			Wrap(err)
	}

	s.logger.Info("user registered", "user_id", user.ID.String())
	return user, nil
}

// Login checks credentials and returns the user on success. Unknown
// email, wrong password, and unconfirmed account all return (nil, nil);
// the caller cannot tell which condition failed.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	user, lookupErr := s.users.GetByEmail(ctx, email)

	targetHash := dummyPasswordHash
	userExists := false
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	// Always verify so the unknown-email path costs the same as a
	// real mismatch.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return nil, nil
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !userExists || !valid || !user.Confirmed {
		return nil, nil
	}

	// Re-hash on cost change; login succeeds regardless.
	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		if newHash, hashErr := s.hasher.Hash(password); hashErr == nil {
			_ = s.users.UpdatePassword(ctx, user.ID, newHash) //nolint:errcheck // Best effort
		}
	}

	s.logger.Info("user logged in", "user_id", user.ID.String())
	return user, nil
}

// Me returns the user for an authenticated session's user ID, or nil
// if the user no longer exists.
func (s *Service) Me(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, oops.Code("AUTH_ME_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}
	return user, nil
}

// Users returns all registered users.
func (s *Service) Users(ctx context.Context) ([]*User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, oops.Code("AUTH_LIST_FAILED").
			With("operation", "list users").
			Wrap(err)
	}
	return users, nil
}

// ConfirmEmail redeems a confirmation token and flips the user to
// confirmed. Returns false when the token is absent: already used,
// expired, or invalid, indistinguishably.
func (s *Service) ConfirmEmail(ctx context.Context, token string) (bool, error) {
	userID, err := RedeemToken(ctx, s.tokens, ConfirmEmailPrefix, token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return false, nil
		}
		return false, err
	}

	if err := s.users.SetConfirmed(ctx, userID, true); err != nil {
		return false, oops.Code("AUTH_CONFIRM_FAILED").
			With("operation", "set confirmed").
			With("user_id", userID.String()).
			Wrap(err)
	}

	s.logger.Info("email confirmed", "user_id", userID.String())
	return true, nil
}

func emailTakenErrors() FieldErrors {
	return FieldErrors{{Field: "email", Message: "Email already in use."}}
}
