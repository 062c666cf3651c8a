// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Name and password length constraints, inclusive.
const (
	MinFieldLength = 3
	MaxFieldLength = 255
)

// emailRegex is a pragmatic syntax check; deliverability is proven by
// the confirmation mail, not by the regex.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// User represents a registered account. PasswordHash only ever holds an
// argon2id PHC string; plaintext never reaches the repository.
type User struct {
	ID           ulid.ULID
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Confirmed    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName is derived on read and never persisted.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// NewUser creates an unconfirmed User from already-validated input and
// an already-hashed password.
func NewUser(firstName, lastName, email, passwordHash string) (*User, error) {
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		FirstName:    firstName,
		LastName:     lastName,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		Confirmed:    false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// FieldError describes a single invalid input field, mirrored verbatim
// into the API response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors is the validation error class: the only error class that
// surfaces structured, per-field detail to callers.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// RegisterInput is the shape of a registration request.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Validate checks all fields and returns a FieldErrors covering every
// violation, or nil when the input is acceptable.
func (in RegisterInput) Validate() error {
	var errs FieldErrors
	errs = appendLengthError(errs, "firstName", in.FirstName)
	errs = appendLengthError(errs, "lastName", in.LastName)
	if !emailRegex.MatchString(in.Email) {
		errs = append(errs, FieldError{Field: "email", Message: "email must be a valid email address"})
	}
	errs = appendPasswordError(errs, in.Password)
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidatePassword checks a bare password, shared between registration
// and the change-password flow.
func ValidatePassword(password string) error {
	if errs := appendPasswordError(nil, password); len(errs) > 0 {
		return errs
	}
	return nil
}

func appendLengthError(errs FieldErrors, field, value string) FieldErrors {
	if len(value) < MinFieldLength || len(value) > MaxFieldLength {
		return append(errs, FieldError{
			Field:   field,
			Message: field + " must be between 3 and 255 characters",
		})
	}
	return errs
}

func appendPasswordError(errs FieldErrors, password string) FieldErrors {
	if len(password) < MinFieldLength || len(password) > MaxFieldLength {
		return append(errs, FieldError{
			Field:   "password",
			Message: "password must be between 3 and 255 characters",
		})
	}
	return errs
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns ErrEmailTaken if the email is
	// already registered.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// List returns all users ordered by creation time.
	List(ctx context.Context) ([]*User, error)

	// SetConfirmed flips the confirmed flag for a user.
	SetConfirmed(ctx context.Context, id ulid.ULID, confirmed bool) error

	// UpdatePassword updates only the password hash for a user.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error
}
