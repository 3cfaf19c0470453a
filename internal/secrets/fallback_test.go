// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"context"
	"errors"
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

var errUnavailable = errors.New("connection refused")

// brokenBackend fails every call.
type brokenBackend struct{}

func (brokenBackend) Get(context.Context, string) (*secrets.Record, error) {
	return nil, errUnavailable
}

func (brokenBackend) Set(context.Context, string, *secrets.Record, time.Duration) error {
	return errUnavailable
}

func (brokenBackend) Delete(context.Context, string) error {
	return errUnavailable
}

func (brokenBackend) Take(context.Context, string) (*secrets.Record, error) {
	return nil, errUnavailable
}

func (brokenBackend) ListActiveIDs(context.Context) ([]string, error) {
	return nil, errUnavailable
}

func (brokenBackend) Count(context.Context) (int, error) {
	return 0, errUnavailable
}

var errTimeout = errors.New("i/o timeout")

// lateBackend applies writes but reports a timeout, like a redis call whose
// reply was lost after the command ran. Deletes fail as well unless
// deletesWork is set, the first failTakes takes time out.
type lateBackend struct {
	secrets.Backend
	deletesWork bool
	failTakes   atomic.Int64
}

func (l *lateBackend) Take(ctx context.Context, id string) (*secrets.Record, error) {
	if l.failTakes.Add(-1) >= 0 {
		return nil, errTimeout
	}
	return l.Backend.Take(ctx, id)
}

func (l *lateBackend) Set(ctx context.Context, id string, record *secrets.Record, ttl time.Duration) error {
	if err := l.Backend.Set(ctx, id, record, ttl); err != nil {
		return err
	}
	return errTimeout
}

func (l *lateBackend) Delete(ctx context.Context, id string) error {
	if !l.deletesWork {
		return errTimeout
	}
	return l.Backend.Delete(ctx, id)
}

func TestFallbackBackendRemoteHealthy(t *testing.T) {
	remote := NewMemoryBackend()
	local := NewMemoryBackend()
	backend := NewFallbackBackend(remote, local)
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "id", testRecord("id", false), time.Hour))

	remoteCount, _ := remote.Count(ctx) //nolint:errcheck
	localCount, _ := local.Count(ctx)   //nolint:errcheck
	assert.Equal(t, 1, remoteCount)
	assert.Equal(t, 0, localCount)

	got, err := backend.Get(ctx, "id")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestFallbackBackendDegrades(t *testing.T) {
	local := NewMemoryBackend()
	backend := NewFallbackBackend(brokenBackend{}, local)
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "id", testRecord("id", true), time.Hour))

	count, err := backend.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	ids, err := backend.ListActiveIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, ids)

	got, err := backend.Get(ctx, "id")
	require.NoError(t, err)
	require.NotNil(t, got)

	taken, err := backend.Take(ctx, "id")
	require.NoError(t, err)
	require.NotNil(t, taken)

	taken, err = backend.Take(ctx, "id")
	require.NoError(t, err)
	assert.Nil(t, taken)

	require.NoError(t, backend.Delete(ctx, "id"))
}

func TestFallbackBackendReadsDegradedRecords(t *testing.T) {
	mr := miniredis.RunT(t)
	remote := NewRedisBackend(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "fb:", time.Second).
		WithClock(secrets.NewFixedClock(testRecord("", false).CreatedAt))
	defer remote.Close() //nolint:errcheck
	local := NewMemoryBackend()
	backend := NewFallbackBackend(remote, local)
	ctx := context.Background()

	// Written while redis is down
	mr.SetError("LOADING redis is loading the dataset in memory")
	require.NoError(t, backend.Set(ctx, "degraded", testRecord("degraded", false), time.Hour))
	mr.SetError("")

	// Written once redis is back
	require.NoError(t, backend.Set(ctx, "healthy", testRecord("healthy", false), time.Hour))

	for _, id := range []string{"degraded", "healthy"} {
		got, err := backend.Get(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, got, id)
	}

	ids, err := backend.ListActiveIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"degraded", "healthy"}, ids)
}

func TestFallbackBackendSetExistingIsNotDegraded(t *testing.T) {
	remote := NewMemoryBackend()
	local := NewMemoryBackend()
	backend := NewFallbackBackend(remote, local)
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "id", testRecord("id", false), time.Hour))
	err := backend.Set(ctx, "id", testRecord("id", false), time.Hour)
	assert.ErrorIs(t, err, secrets.ErrExists)

	localCount, _ := local.Count(ctx) //nolint:errcheck
	assert.Equal(t, 0, localCount)
}

func TestFallbackBackendLateRemoteWriteTakenOnce(t *testing.T) {
	remote := &lateBackend{Backend: NewMemoryBackend()}
	local := NewMemoryBackend()
	backend := NewFallbackBackend(remote, local)
	ctx := context.Background()

	// The record ends up in both backends
	require.NoError(t, backend.Set(ctx, "burn", testRecord("burn", true), time.Hour))

	taken := 0
	for range 3 {
		record, err := backend.Take(ctx, "burn")
		require.NoError(t, err)
		if record != nil {
			taken++
		}
	}
	assert.Equal(t, 1, taken)

	localCount, err := local.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, localCount)
}

func TestFallbackBackendLateRemoteWriteConcurrentTake(t *testing.T) {
	remote := &lateBackend{Backend: NewMemoryBackend()}
	backend := NewFallbackBackend(remote, NewMemoryBackend())
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "burn", testRecord("burn", true), time.Hour))

	var (
		wg    sync.WaitGroup
		taken atomic.Int64
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if record, err := backend.Take(ctx, "burn"); err == nil && record != nil {
				taken.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), taken.Load())
}

func TestFallbackBackendLateRemoteWriteIsRemoved(t *testing.T) {
	inner := NewMemoryBackend()
	local := NewMemoryBackend()
	backend := NewFallbackBackend(&lateBackend{Backend: inner, deletesWork: true}, local)
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "burn", testRecord("burn", true), time.Hour))

	remoteCount, err := inner.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, remoteCount)

	localCount, err := local.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, localCount)
}

func TestFallbackBackendLocalTakeWhileRemoteFails(t *testing.T) {
	remote := &lateBackend{Backend: NewMemoryBackend()}
	backend := NewFallbackBackend(remote, NewMemoryBackend())
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "burn", testRecord("burn", true), time.Hour))

	// The local copy is handed out while the remote times out
	remote.failTakes.Store(1)
	record, err := backend.Take(ctx, "burn")
	require.NoError(t, err)
	require.NotNil(t, record)

	// Once the remote is back its copy is not served again
	record, err = backend.Take(ctx, "burn")
	require.NoError(t, err)
	assert.Nil(t, record)

	record, err = backend.Take(ctx, "burn")
	require.NoError(t, err)
	assert.Nil(t, record)
}
