// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package store implements the secret store: it owns the lifecycle of the
// records kept in a storage backend, applies admission control and expires
// records lazily on access and through a periodic sweeper.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/carabiner-dev/burnlink/options"
	"github.com/carabiner-dev/burnlink/secrets"
)

// Store is the only component that mutates the storage backend. Several
// independent stores can exist in the same process.
type Store struct {
	backend secrets.Backend
	options *options.Server
	clock   secrets.Clock
	stats   counters
}

type counters struct {
	created atomic.Uint64
	read    atomic.Uint64
	burned  atomic.Uint64
	expired atomic.Uint64
	errors  atomic.Uint64
}

// Stats is a snapshot of the store activity since it was created.
type Stats struct {
	Created       uint64 `json:"created"`
	Read          uint64 `json:"read"`
	Expired       uint64 `json:"expired"`
	Burned        uint64 `json:"burned"`
	Errors        uint64 `json:"errors"`
	ActiveSecrets int    `json:"activeSecrets"`
	MaxSecrets    int    `json:"maxSecrets"`
}

// New creates a store on top of backend configured with the server options.
func New(backend secrets.Backend, opts *options.Server) (*Store, error) {
	if backend == nil {
		return nil, errors.New("a storage backend is required")
	}
	if opts == nil {
		opts = options.DefaultServer
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store options: %w", err)
	}

	return &Store{
		backend: backend,
		options: opts,
		clock:   secrets.SystemClock{},
	}, nil
}

// WithClock sets a custom clock (for testing)
func (s *Store) WithClock(clock secrets.Clock) *Store {
	s.clock = clock
	return s
}

// Backend returns the storage backend the store writes to.
func (s *Store) Backend() secrets.Backend {
	return s.backend
}

// MaxSecrets returns the configured capacity.
func (s *Store) MaxSecrets() int {
	return s.options.MaxSecrets
}

// Stats returns the activity counters together with the number of records
// currently held by the backend.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := s.Counters()
	active, err := s.backend.Count(ctx)
	if err != nil {
		return stats, fmt.Errorf("counting secrets: %w", err)
	}
	stats.ActiveSecrets = active
	return stats, nil
}

// Counters returns the activity counters without querying the backend.
func (s *Store) Counters() Stats {
	return Stats{
		Created:    s.stats.created.Load(),
		Read:       s.stats.read.Load(),
		Expired:    s.stats.expired.Load(),
		Burned:     s.stats.burned.Load(),
		Errors:     s.stats.errors.Load(),
		MaxSecrets: s.options.MaxSecrets,
	}
}
