// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// One-time token configuration. The two prefixes keep the confirm and
// reset flows in disjoint key spaces so a token issued for one flow can
// never redeem in the other.
const (
	ConfirmEmailPrefix   = "confirm-email:"
	ForgotPasswordPrefix = "forgot-password:"

	TokenTTL = 24 * time.Hour
)

// TokenStore is a key-value store with TTL used for one-time tokens.
// GetDel must be atomic: of two concurrent redemptions for the same
// key, exactly one may observe the value.
type TokenStore interface {
	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// GetDel returns the value for key and deletes it in the same
	// operation. Returns ErrNotFound if the key is absent.
	GetDel(ctx context.Context, key string) (string, error)
}

// IssueToken generates a random one-time token, stores it under
// prefix+token mapping to the user ID, and returns the plaintext token
// for embedding in a mail link.
func IssueToken(ctx context.Context, store TokenStore, prefix string, userID ulid.ULID) (string, error) {
	token := uuid.NewString()
	if err := store.Set(ctx, prefix+token, userID.String(), TokenTTL); err != nil {
		return "", oops.Code("TOKEN_ISSUE_FAILED").
			With("prefix", prefix).
			Wrap(err)
	}
	return token, nil
}

// RedeemToken atomically consumes a one-time token and returns the user
// ID it was issued for. Returns ErrInvalidToken when the token is
// absent (expired, already redeemed, or never issued).
func RedeemToken(ctx context.Context, store TokenStore, prefix, token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, ErrInvalidToken
	}

	value, err := store.GetDel(ctx, prefix+token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ulid.ULID{}, ErrInvalidToken
		}
		return ulid.ULID{}, oops.Code("TOKEN_REDEEM_FAILED").
			With("prefix", prefix).
			Wrap(err)
	}

	id, err := ulid.Parse(value)
	if err != nil {
		return ulid.ULID{}, oops.Code("TOKEN_CORRUPT_VALUE").
			With("prefix", prefix).
			Wrap(err)
	}
	return id, nil
}
