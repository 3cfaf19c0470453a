// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/carabiner-dev/burnlink/internal/common"
	"github.com/carabiner-dev/burnlink/secrets"
)

// maxIDAttempts is the number of fresh ids tried when a backend reports
// that a generated id is already live.
const maxIDAttempts = 3

// Create stores a new secret and returns its id. The envelope and the ttl
// are checked before the store looks at its capacity, a full store refuses
// the secret instead of evicting another one.
func (s *Store) Create(ctx context.Context, envelope json.RawMessage, ttlSeconds int64, burnAfterRead bool) (string, error) {
	if err := common.ValidateEnvelope(envelope, s.options.MaxPayloadSize); err != nil {
		s.stats.errors.Add(1)
		return "", err
	}

	if !s.options.TTLAllowed(ttlSeconds) {
		s.stats.errors.Add(1)
		return "", fmt.Errorf("%w: %d seconds", secrets.ErrInvalidTTL, ttlSeconds)
	}

	// Concurrent creates may all pass this check, the overshoot is bounded
	// by the number of requests in flight.
	count, err := s.backend.Count(ctx)
	if err != nil {
		s.stats.errors.Add(1)
		return "", fmt.Errorf("counting secrets: %w", err)
	}
	if count >= s.options.MaxSecrets {
		s.stats.errors.Add(1)
		clog.FromContext(ctx).Warnf("Refusing secret, maximum number of secrets (%d) reached", s.options.MaxSecrets)
		return "", secrets.ErrCapacityExceeded
	}

	ttl := time.Duration(ttlSeconds) * time.Second
	for attempt := 1; ; attempt++ {
		id, err := common.GenerateID()
		if err != nil {
			s.stats.errors.Add(1)
			return "", err
		}

		now := s.clock.Now()
		record := &secrets.Record{
			ID:            id,
			Envelope:      bytes.Clone(envelope),
			CreatedAt:     now,
			ExpiresAt:     now.Add(ttl),
			BurnAfterRead: burnAfterRead,
		}

		err = s.backend.Set(ctx, id, record, ttl)
		if err == nil {
			s.stats.created.Add(1)
			clog.FromContext(ctx).Infof("Secret created: %s (ttl: %ds, burn after read: %t)", common.ShortID(id), ttlSeconds, burnAfterRead)
			return id, nil
		}

		if errors.Is(err, secrets.ErrExists) && attempt < maxIDAttempts {
			clog.FromContext(ctx).Warnf("Generated id %s is already live, retrying", common.ShortID(id))
			continue
		}

		s.stats.errors.Add(1)
		return "", fmt.Errorf("storing secret: %w", err)
	}
}
