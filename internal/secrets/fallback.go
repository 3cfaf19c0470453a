// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/carabiner-dev/burnlink/secrets"
)

// Ensure the driver implements the backend interface
var _ secrets.Backend = &FallbackBackend{}

// FallbackBackend tries a remote backend first and degrades to a local one
// whenever the remote call fails. The failure is logged, callers never see it.
//
// Records written while degraded only exist in the local backend, so reads that
// miss remotely also look there. Once degraded, replicas no longer share state:
// only a healthy remote backend is correct across several server instances.
type FallbackBackend struct {
	remote secrets.Backend
	local  secrets.Backend

	// Takes of the same id are serialized so the remote and the local copy
	// are consumed as one.
	takeLocks [takeLockStripes]sync.Mutex

	// consumed holds the ids taken locally while the remote was failing,
	// until their expiry. A remote copy of those must not be handed out.
	mu       sync.Mutex
	consumed map[string]time.Time
}

const takeLockStripes = 64

// NewFallbackBackend wraps remote with local as its fallback.
func NewFallbackBackend(remote, local secrets.Backend) *FallbackBackend {
	return &FallbackBackend{
		remote:   remote,
		local:    local,
		consumed: map[string]time.Time{},
	}
}

func (f *FallbackBackend) takeLock(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id)) //nolint:errcheck
	return &f.takeLocks[h.Sum32()%takeLockStripes]
}

func (f *FallbackBackend) degrade(ctx context.Context, op string, err error) {
	clog.FromContext(ctx).Warnf("remote backend %s failed, falling back to local storage: %v", op, err)
}

// Get looks up the record remotely and then locally.
func (f *FallbackBackend) Get(ctx context.Context, id string) (*secrets.Record, error) {
	record, err := f.remote.Get(ctx, id)
	if err != nil {
		f.degrade(ctx, "get", err)
		return f.local.Get(ctx, id)
	}
	if record != nil {
		return record, nil
	}
	return f.local.Get(ctx, id)
}

// Set stores the record remotely, or locally if the remote is unavailable.
// A failed remote write may still have landed (a timeout after the command
// ran), so the remote key is removed before the record is written locally.
func (f *FallbackBackend) Set(ctx context.Context, id string, record *secrets.Record, ttl time.Duration) error {
	err := f.remote.Set(ctx, id, record, ttl)
	if err == nil || errors.Is(err, secrets.ErrExists) {
		return err
	}
	f.degrade(ctx, "set", err)
	if err := f.remote.Delete(ctx, id); err != nil {
		f.degrade(ctx, "delete", err)
	}
	return f.local.Set(ctx, id, record, ttl)
}

// Delete removes the record from both backends.
func (f *FallbackBackend) Delete(ctx context.Context, id string) error {
	if err := f.remote.Delete(ctx, id); err != nil {
		f.degrade(ctx, "delete", err)
	}
	return f.local.Delete(ctx, id)
}

// Take consumes the record from whichever backend holds it. When the remote
// returns the record, any local copy is dropped too so no later Take can
// hand out the same secret again.
func (f *FallbackBackend) Take(ctx context.Context, id string) (*secrets.Record, error) {
	mu := f.takeLock(id)
	mu.Lock()
	defer mu.Unlock()

	record, err := f.remote.Take(ctx, id)
	if err != nil {
		f.degrade(ctx, "take", err)
		record, err := f.local.Take(ctx, id)
		if err == nil && record != nil {
			f.markConsumed(id, record.ExpiresAt)
		}
		return record, err
	}
	if record == nil {
		return f.local.Take(ctx, id)
	}
	if f.wasConsumed(id) {
		return nil, nil
	}
	if err := f.local.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("dropping local copy: %w", err)
	}
	return record, nil
}

func (f *FallbackBackend) markConsumed(id string, expiresAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	for other, until := range f.consumed {
		if now.After(until) {
			delete(f.consumed, other)
		}
	}
	f.consumed[id] = expiresAt
}

// wasConsumed reports whether id was already taken locally and forgets it
func (f *FallbackBackend) wasConsumed(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.consumed[id]; !ok {
		return false
	}
	delete(f.consumed, id)
	return true
}

// ListActiveIDs returns the union of the ids in both backends.
func (f *FallbackBackend) ListActiveIDs(ctx context.Context) ([]string, error) {
	localIDs, err := f.local.ListActiveIDs(ctx)
	if err != nil {
		return nil, err
	}

	remoteIDs, err := f.remote.ListActiveIDs(ctx)
	if err != nil {
		f.degrade(ctx, "list", err)
		return localIDs, nil
	}

	seen := make(map[string]struct{}, len(remoteIDs))
	for _, id := range remoteIDs {
		seen[id] = struct{}{}
	}
	for _, id := range localIDs {
		if _, ok := seen[id]; !ok {
			remoteIDs = append(remoteIDs, id)
		}
	}
	return remoteIDs, nil
}

// Count adds up the records held by both backends.
func (f *FallbackBackend) Count(ctx context.Context) (int, error) {
	localCount, err := f.local.Count(ctx)
	if err != nil {
		return 0, err
	}

	remoteCount, err := f.remote.Count(ctx)
	if err != nil {
		f.degrade(ctx, "count", err)
		return localCount, nil
	}
	return remoteCount + localCount, nil
}
