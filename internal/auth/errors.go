// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned when registering with an email that is
// already in use. Repositories translate the database unique-violation
// into this sentinel so the service can surface a field error.
var ErrEmailTaken = errors.New("email already in use")

// ErrInvalidToken is returned when a one-time token is absent from the
// store: expired, already redeemed, or never issued. The three cases
// are indistinguishable on purpose.
var ErrInvalidToken = errors.New("invalid token")
