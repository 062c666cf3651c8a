// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package token_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/token"
)

// testClient is the shared Redis client for integration tests.
var testClient *redis.Client

// TestMain sets up a Redis testcontainer for integration tests.
func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		panic("failed to start redis container: " + err.Error())
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to get redis endpoint: " + err.Error())
	}

	testClient = redis.NewClient(&redis.Options{Addr: endpoint})
	if err := testClient.Ping(ctx).Err(); err != nil {
		_ = container.Terminate(ctx)
		panic("failed to ping redis: " + err.Error())
	}

	code := m.Run()

	_ = testClient.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestRedisStore_Integration_SetGetDel(t *testing.T) {
	ctx := context.Background()
	store := token.NewRedisStore(testClient)

	require.NoError(t, store.Set(ctx, "confirm-email:tok-1", "value", time.Minute))

	value, err := store.GetDel(ctx, "confirm-email:tok-1")
	require.NoError(t, err)
	assert.Equal(t, "value", value)

	_, err = store.GetDel(ctx, "confirm-email:tok-1")
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestRedisStore_Integration_TTL(t *testing.T) {
	ctx := context.Background()
	store := token.NewRedisStore(testClient)

	require.NoError(t, store.Set(ctx, "short-lived", "value", 100*time.Millisecond))
	time.Sleep(300 * time.Millisecond)

	_, err := store.GetDel(ctx, "short-lived")
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestRedisStore_Integration_ConcurrentRedemption(t *testing.T) {
	ctx := context.Background()
	store := token.NewRedisStore(testClient)
	require.NoError(t, store.Set(ctx, "contested", "value", time.Minute))

	const redeemers = 16
	var wg sync.WaitGroup
	winners := make(chan string, redeemers)

	for range redeemers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if value, err := store.GetDel(ctx, "contested"); err == nil {
				winners <- value
			}
		}()
	}
	wg.Wait()
	close(winners)

	// GETDEL is atomic server-side; exactly one goroutine wins.
	count := 0
	for range winners {
		count++
	}
	assert.Equal(t, 1, count)
}
