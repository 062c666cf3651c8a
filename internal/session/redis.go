// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

const keyPrefix = "session:"

// RedisStore keeps sessions in Redis under the session: key prefix.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Set(ctx context.Context, sid, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, keyPrefix+sid, userID, ttl).Err(); err != nil {
		return oops.Code("SESSION_SET_FAILED").With("operation", "redis set").Wrap(err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sid string) (string, bool, error) {
	value, err := s.client.Get(ctx, keyPrefix+sid).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, oops.Code("SESSION_GET_FAILED").With("operation", "redis get").Wrap(err)
	}
	return value, true, nil
}

func (s *RedisStore) Expire(ctx context.Context, sid string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, keyPrefix+sid, ttl).Err(); err != nil {
		return oops.Code("SESSION_EXPIRE_FAILED").With("operation", "redis expire").Wrap(err)
	}
	return nil
}

func (s *RedisStore) Del(ctx context.Context, sid string) error {
	if err := s.client.Del(ctx, keyPrefix+sid).Err(); err != nil {
		return oops.Code("SESSION_DEL_FAILED").With("operation", "redis del").Wrap(err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
