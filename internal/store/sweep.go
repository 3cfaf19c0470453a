// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
)

// Sweep removes every record whose lifetime has passed and returns how many
// were removed. It is safe to run concurrently with Create and Read.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	ids, err := s.backend.ListActiveIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing secrets: %w", err)
	}

	now := s.clock.Now()
	removed := 0

	var errs []error
	for _, id := range ids {
		record, err := s.backend.Get(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetching secret: %w", err))
			continue
		}

		// Consumed or evicted since the listing
		if record == nil || !record.Expired(now) {
			continue
		}

		ok, err := s.expire(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			removed++
		}
	}

	if removed > 0 {
		clog.FromContext(ctx).Infof("Cleanup: %d expired secret(s) removed", removed)
	}
	return removed, errors.Join(errs...)
}

// RunSweeper calls Sweep on every cleanup interval until ctx is canceled.
func (s *Store) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.options.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.stats.errors.Add(1)
				clog.FromContext(ctx).Errorf("Sweeping expired secrets: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
