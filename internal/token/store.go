// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package token provides the key-value store used for one-time
// confirmation and reset tokens.
package token

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// RedisStore implements auth.TokenStore on Redis. GETDEL gives the
// single-redemption guarantee: of two concurrent redemptions for the
// same key, only one observes the value.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a RedisStore over any go-redis client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Set stores value under key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return oops.Code("TOKEN_SET_FAILED").
			With("operation", "redis set").
			Wrap(err)
	}
	return nil
}

// GetDel returns the value for key and deletes it atomically.
// Returns auth.ErrNotFound if the key is absent.
func (s *RedisStore) GetDel(ctx context.Context, key string) (string, error) {
	value, err := s.client.GetDel(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", auth.ErrNotFound
		}
		return "", oops.Code("TOKEN_GETDEL_FAILED").
			With("operation", "redis getdel").
			Wrap(err)
	}
	return value, nil
}

// Compile-time interface check.
var _ auth.TokenStore = (*RedisStore)(nil)
