// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth provides the account domain for Gatehouse.
//
// # Domain Types
//
// User is the single persisted entity. Create one through NewUser,
// which validates input and guarantees the password field only ever
// holds an argon2id hash. Direct struct initialization bypasses
// validation and may create invalid state.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - register, login, current-user lookup, email confirmation
//   - PasswordResetService - forgot-password and change-password flow
//
// Both are created with New*Service constructors that validate their
// dependencies. Session establishment lives in the API layer; the
// services here deal in credentials, tokens, and users only.
package auth
