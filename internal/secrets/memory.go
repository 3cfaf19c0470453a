// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"context"
	"sync"
	"time"

	"github.com/carabiner-dev/burnlink/secrets"
)

// Ensure the driver implements the backend interface
var _ secrets.Backend = &MemoryBackend{}

// MemoryBackend is an in-process implementation of the secrets.Backend
// interface. Records live in a map protected by a mutex. It does not enforce
// expiry, the store applies it lazily and through its sweeper.
//
// State is local to the process: this backend is only correct when a single
// server instance is running.
type MemoryBackend struct {
	data map[string]*secrets.Record
	mu   sync.RWMutex
}

// NewMemoryBackend creates a new in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string]*secrets.Record),
	}
}

// Get retrieves a record from memory by its ID.
func (m *MemoryBackend) Get(_ context.Context, id string) (*secrets.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.data[id], nil
}

// Set stores a record in memory. The ttl is ignored.
func (m *MemoryBackend) Set(_ context.Context, id string, record *secrets.Record, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[id]; exists {
		return secrets.ErrExists
	}
	m.data[id] = record
	return nil
}

// Delete removes a record from memory by its id.
func (m *MemoryBackend) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, id)
	return nil
}

// Take removes a record and returns it under the same lock.
func (m *MemoryBackend) Take(_ context.Context, id string) (*secrets.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.data[id]
	if !exists {
		return nil, nil
	}
	delete(m.data, id)
	return record, nil
}

// ListActiveIDs returns a snapshot of the stored ids.
func (m *MemoryBackend) ListActiveIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	return ids, nil
}

// Count returns the number of records in memory.
func (m *MemoryBackend) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.data), nil
}
