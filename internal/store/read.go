// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/chainguard-dev/clog"

	"github.com/carabiner-dev/burnlink/internal/common"
	"github.com/carabiner-dev/burnlink/secrets"
)

// Read returns the envelope stored under id.
//
// Absent, expired and already consumed secrets all return ErrNotFound. When
// the secret is burn after read, the record is removed with the backend's
// atomic Take: of several concurrent readers only the one that gets the
// record back succeeds.
func (s *Store) Read(ctx context.Context, id string) (json.RawMessage, error) {
	if !common.ValidID(id) {
		return nil, secrets.ErrInvalidID
	}

	record, err := s.backend.Get(ctx, id)
	if err != nil {
		s.stats.errors.Add(1)
		return nil, fmt.Errorf("fetching secret: %w", err)
	}
	if record == nil {
		return nil, secrets.ErrNotFound
	}

	if record.Expired(s.clock.Now()) {
		if _, err := s.expire(ctx, id); err != nil {
			s.stats.errors.Add(1)
			return nil, err
		}
		return nil, secrets.ErrNotFound
	}

	if !record.BurnAfterRead {
		s.stats.read.Add(1)
		clog.FromContext(ctx).Debugf("Secret read: %s", common.ShortID(id))
		return bytes.Clone(record.Envelope), nil
	}

	consumed, err := s.backend.Take(ctx, id)
	if err != nil {
		s.stats.errors.Add(1)
		return nil, fmt.Errorf("consuming secret: %w", err)
	}
	if consumed == nil {
		return nil, secrets.ErrNotFound
	}

	s.stats.burned.Add(1)
	clog.FromContext(ctx).Infof("Secret burned after read: %s", common.ShortID(id))
	return consumed.Envelope, nil
}

// expire removes an expired record and reports whether this call removed
// it. Only the caller that actually removes it counts the expiration.
func (s *Store) expire(ctx context.Context, id string) (bool, error) {
	removed, err := s.backend.Take(ctx, id)
	if err != nil {
		return false, fmt.Errorf("deleting expired secret: %w", err)
	}
	if removed == nil {
		return false, nil
	}
	s.stats.expired.Add(1)
	clog.FromContext(ctx).Debugf("Removed expired secret: %s", common.ShortID(id))
	return true, nil
}
