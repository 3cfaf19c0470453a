// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carabiner-dev/burnlink/secrets"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisBackend) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackend(client, "test:", time.Second)
	t.Cleanup(func() { _ = backend.Close() }) //nolint:errcheck
	return mr, backend
}

func TestRedisBackendSetAndGet(t *testing.T) {
	mr, backend := newTestRedis(t)
	ctx := context.Background()
	record := testRecord("0123456789abcdef0123456789abcdef", false)
	backend.WithClock(secrets.NewFixedClock(record.CreatedAt))

	require.NoError(t, backend.Set(ctx, record.ID, record, time.Hour))
	assert.True(t, mr.Exists("test:secret:"+record.ID))
	assert.Equal(t, time.Hour, mr.TTL("test:secret:"+record.ID))

	got, err := backend.Get(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.Envelope, got.Envelope)
	assert.True(t, record.ExpiresAt.Equal(got.ExpiresAt))

	count, err := backend.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	ids, err := backend.ListActiveIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{record.ID}, ids)
}

func TestRedisBackendSetExisting(t *testing.T) {
	_, backend := newTestRedis(t)
	ctx := context.Background()
	record := testRecord("dup", false)

	require.NoError(t, backend.Set(ctx, "dup", record, time.Hour))
	err := backend.Set(ctx, "dup", record, time.Hour)
	assert.ErrorIs(t, err, secrets.ErrExists)
}

func TestRedisBackendSetInvalidTTL(t *testing.T) {
	_, backend := newTestRedis(t)
	err := backend.Set(context.Background(), "x", testRecord("x", false), 0)
	assert.Error(t, err)
}

func TestRedisBackendGetMissing(t *testing.T) {
	_, backend := newTestRedis(t)
	got, err := backend.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisBackendNativeExpiry(t *testing.T) {
	mr, backend := newTestRedis(t)
	ctx := context.Background()
	record := testRecord("expiring", false)
	clock := secrets.NewFixedClock(record.CreatedAt)
	backend.WithClock(clock)

	require.NoError(t, backend.Set(ctx, "expiring", record, time.Hour))

	mr.FastForward(time.Hour + time.Second)
	clock.Advance(time.Hour + time.Second)

	got, err := backend.Get(ctx, "expiring")
	require.NoError(t, err)
	assert.Nil(t, got)

	count, err := backend.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "stale index entries are pruned")
}

func TestRedisBackendDelete(t *testing.T) {
	_, backend := newTestRedis(t)
	ctx := context.Background()
	backend.WithClock(secrets.NewFixedClock(testRecord("", false).CreatedAt))

	require.NoError(t, backend.Set(ctx, "del", testRecord("del", false), time.Hour))
	require.NoError(t, backend.Delete(ctx, "del"))
	require.NoError(t, backend.Delete(ctx, "del"), "deleting twice is a no-op")

	got, err := backend.Get(ctx, "del")
	require.NoError(t, err)
	assert.Nil(t, got)

	count, err := backend.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRedisBackendTake(t *testing.T) {
	_, backend := newTestRedis(t)
	ctx := context.Background()
	backend.WithClock(secrets.NewFixedClock(testRecord("", false).CreatedAt))

	require.NoError(t, backend.Set(ctx, "take", testRecord("take", true), time.Hour))

	first, err := backend.Take(ctx, "take")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, first.BurnAfterRead)

	second, err := backend.Take(ctx, "take")
	require.NoError(t, err)
	assert.Nil(t, second)

	count, err := backend.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRedisBackendConcurrentTake(t *testing.T) {
	_, backend := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "race", testRecord("race", true), time.Hour))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record, err := backend.Take(ctx, "race")
			if err == nil && record != nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestRedisBackendUnavailable(t *testing.T) {
	mr, backend := newTestRedis(t)
	mr.Close()

	err := backend.Set(context.Background(), "x", testRecord("x", false), time.Hour)
	assert.Error(t, err)
	_, err = backend.Get(context.Background(), "x")
	assert.Error(t, err)
	assert.Error(t, backend.Ping(context.Background()))
}

func TestNewRedisBackendFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	backend, err := NewRedisBackendFromURL("redis://"+mr.Addr()+"/0", "", time.Second)
	require.NoError(t, err)
	defer backend.Close() //nolint:errcheck

	require.NoError(t, backend.Ping(context.Background()))
	assert.Equal(t, DefaultKeyPrefix, backend.keyPrefix)

	_, err = NewRedisBackendFromURL("not a url", "", time.Second)
	assert.Error(t, err)
}
