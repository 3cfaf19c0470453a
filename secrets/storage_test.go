// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"testing"
	"time"
)

func TestRecordExpired(t *testing.T) {
	expiresAt := time.Date(2025, time.June, 1, 13, 0, 0, 0, time.UTC)
	record := &Record{ExpiresAt: expiresAt}

	if record.Expired(expiresAt.Add(-time.Nanosecond)) {
		t.Errorf("Expected record to be live before its expiry")
	}
	if !record.Expired(expiresAt) {
		t.Errorf("Expected record to be expired at exactly its expiry")
	}
	if !record.Expired(expiresAt.Add(time.Second)) {
		t.Errorf("Expected record to be expired after its expiry")
	}
}
