// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	// idBytes is the number of random bytes in a secret identifier.
	idBytes = 16

	// IDLength is the length of the textual identifier (hex encoded).
	IDLength = idBytes * 2
)

// GenerateID returns a new random identifier of 32 lowercase hex characters.
//
// Uniqueness is probabilistic: 128 random bits make a collision negligible at
// the store's operating scale. The generator does not look at existing keys,
// backends refuse to overwrite a live id instead.
func GenerateID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ValidID checks that id has the exact shape produced by GenerateID.
func ValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// ShortID truncates an identifier for logging.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
