// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package token

import (
	"context"
	"sync"
	"time"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// MemoryStore is an in-process auth.TokenStore with the same
// single-redemption semantics as RedisStore. Used by tests and by
// `serve --dev` when no Redis is available.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Set stores value under key with the given TTL.
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// GetDel returns the value for key and deletes it in the same critical
// section. Returns auth.ErrNotFound if the key is absent or expired.
func (s *MemoryStore) GetDel(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return "", auth.ErrNotFound
	}
	delete(s.entries, key)
	if time.Now().After(entry.expiresAt) {
		return "", auth.ErrNotFound
	}
	return entry.value, nil
}

// Compile-time interface check.
var _ auth.TokenStore = (*MemoryStore)(nil)
