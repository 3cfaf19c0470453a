// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/carabiner-dev/burnlink/secrets"
)

// envelopeFields is decoded only to check the envelope structure, the
// envelope itself is kept as the raw bytes.
type envelopeFields struct {
	Version    json.Number `json:"v"`
	Ciphertext string      `json:"ct"`
	IV         string      `json:"iv"`
	Salt       string      `json:"salt"`
}

// ValidateEnvelope checks that a JSON envelope carries all of its fields and
// that it fits in maxSize bytes. It never looks inside the ciphertext and
// ignores any other field. Returned errors wrap secrets.ErrInvalidEnvelope.
func ValidateEnvelope(raw []byte, maxSize int) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: payload missing", secrets.ErrInvalidEnvelope)
	}
	if len(raw) > maxSize {
		return fmt.Errorf("%w: payload size (%d bytes) exceeds maximum allowed size (%d bytes)",
			secrets.ErrInvalidEnvelope, len(raw), maxSize)
	}

	var fields envelopeFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("%w: %v", secrets.ErrInvalidEnvelope, err)
	}

	version, err := strconv.ParseFloat(fields.Version.String(), 64)
	switch {
	case err != nil || version == 0:
		return fmt.Errorf("%w: missing field v", secrets.ErrInvalidEnvelope)
	case fields.Ciphertext == "":
		return fmt.Errorf("%w: missing field ct", secrets.ErrInvalidEnvelope)
	case fields.IV == "":
		return fmt.Errorf("%w: missing field iv", secrets.ErrInvalidEnvelope)
	case fields.Salt == "":
		return fmt.Errorf("%w: missing field salt", secrets.ErrInvalidEnvelope)
	}

	return nil
}
