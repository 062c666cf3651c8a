// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package session provides cookie-backed server-side sessions. The
// browser holds only an opaque session ID; the authenticated user ID
// lives server-side, normally in Redis.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session configuration.
const (
	// CookieName is the session cookie, named after the original
	// deployment's qid cookie.
	CookieName = "qid"

	// sessionIDBytes is the random length of a session ID. 32 bytes =
	// 64 hex chars.
	sessionIDBytes = 32

	// DefaultTTL keeps sessions alive for ten years; logout is the
	// expected end of life, not expiry.
	DefaultTTL = 10 * 365 * 24 * time.Hour
)

// Store persists session IDs against user IDs. Implementations must
// treat a missing session as (ok=false, err=nil), not an error.
type Store interface {
	Set(ctx context.Context, sid, userID string, ttl time.Duration) error
	Get(ctx context.Context, sid string) (userID string, ok bool, err error)
	Expire(ctx context.Context, sid string, ttl time.Duration) error
	Del(ctx context.Context, sid string) error
}

// Manager creates, resolves, and destroys sessions, and owns the
// session cookie contract.
type Manager struct {
	store  Store
	ttl    time.Duration
	domain string
	secure bool
}

// NewManager creates a Manager with DefaultTTL.
// secure marks the cookie Secure; set it in production deployments.
func NewManager(store Store, domain string, secure bool) (*Manager, error) {
	return NewManagerWithTTL(store, domain, secure, DefaultTTL)
}

// NewManagerWithTTL creates a Manager with an explicit session TTL.
func NewManagerWithTTL(store Store, domain string, secure bool, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, oops.Errorf("session store is required")
	}
	if ttl <= 0 {
		return nil, oops.Errorf("session TTL must be positive")
	}
	return &Manager{store: store, ttl: ttl, domain: domain, secure: secure}, nil
}

// Create stores a new session for the user and returns its ID.
func (m *Manager) Create(ctx context.Context, userID ulid.ULID) (string, error) {
	idBytes := make([]byte, sessionIDBytes)
	if _, err := rand.Read(idBytes); err != nil {
		return "", oops.Code("SESSION_ID_GENERATE_FAILED").Wrap(err)
	}
	sid := hex.EncodeToString(idBytes)

	if err := m.store.Set(ctx, sid, userID.String(), m.ttl); err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").Wrap(err)
	}
	return sid, nil
}

// UserID resolves a session ID to the authenticated user ID.
// ok is false when the session does not exist or has expired.
func (m *Manager) UserID(ctx context.Context, sid string) (userID ulid.ULID, ok bool, err error) {
	if sid == "" {
		return ulid.ULID{}, false, nil
	}

	value, ok, err := m.store.Get(ctx, sid)
	if err != nil {
		return ulid.ULID{}, false, oops.Code("SESSION_GET_FAILED").Wrap(err)
	}
	if !ok {
		return ulid.ULID{}, false, nil
	}

	id, err := ulid.Parse(value)
	if err != nil {
		return ulid.ULID{}, false, oops.Code("SESSION_CORRUPT_VALUE").Wrap(err)
	}
	return id, true, nil
}

// Touch refreshes the session's TTL. Best effort on the hot path;
// callers may ignore the error.
func (m *Manager) Touch(ctx context.Context, sid string) error {
	if err := m.store.Expire(ctx, sid, m.ttl); err != nil {
		return oops.Code("SESSION_TOUCH_FAILED").Wrap(err)
	}
	return nil
}

// Destroy removes a session. Destroying an absent session is not an
// error; only a store failure is.
func (m *Manager) Destroy(ctx context.Context, sid string) error {
	if err := m.store.Del(ctx, sid); err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").Wrap(err)
	}
	return nil
}

// SetCookie writes the session cookie: http-only, SameSite=Lax, Secure
// in production, expiring with the session TTL.
func (m *Manager) SetCookie(w http.ResponseWriter, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sid,
		Path:     "/",
		Domain:   m.domain, // may be empty for host-only
		Expires:  time.Now().Add(m.ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   m.secure,
	})
}

// ClearCookie expires the session cookie immediately.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Domain:   m.domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   m.secure,
	})
}

// ReadCookie extracts the session ID from the request cookie.
// Returns "" when no cookie is present.
func ReadCookie(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
