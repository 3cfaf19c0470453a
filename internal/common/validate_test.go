// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"errors"
	"strings"
	"testing"

	"github.com/carabiner-dev/burnlink/secrets"
)

func TestValidateEnvelope(t *testing.T) {
	for _, tc := range []struct {
		name    string
		env     string
		max     int
		wantErr bool
	}{
		{"valid", `{"v":1,"ct":"AA","iv":"BB","salt":"CC"}`, 1000, false},
		{"float-version", `{"v":1.0,"ct":"AA","iv":"BB","salt":"CC"}`, 1000, false},
		{"extra-fields", `{"v":1,"ct":"AA","iv":"BB","salt":"CC","alg":"A256GCM"}`, 1000, false},
		{"empty", ``, 1000, true},
		{"null", `null`, 1000, true},
		{"not-an-object", `[1,2,3]`, 1000, true},
		{"no-version", `{"ct":"AA","iv":"BB","salt":"CC"}`, 1000, true},
		{"zero-version", `{"v":0,"ct":"AA","iv":"BB","salt":"CC"}`, 1000, true},
		{"bool-version", `{"v":true,"ct":"AA","iv":"BB","salt":"CC"}`, 1000, true},
		{"no-ct", `{"v":1,"iv":"BB","salt":"CC"}`, 1000, true},
		{"numeric-ct", `{"v":1,"ct":12,"iv":"BB","salt":"CC"}`, 1000, true},
		{"no-iv", `{"v":1,"ct":"AA","salt":"CC"}`, 1000, true},
		{"no-salt", `{"v":1,"ct":"AA","iv":"BB"}`, 1000, true},
		{"too-large", `{"v":1,"ct":"` + strings.Repeat("A", 200) + `","iv":"BB","salt":"CC"}`, 100, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateEnvelope([]byte(tc.env), tc.max)
			if tc.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				if !errors.Is(err, secrets.ErrInvalidEnvelope) {
					t.Errorf("Expected ErrInvalidEnvelope, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestValidateEnvelopeSizeIsRawLength(t *testing.T) {
	env := `{ "v": 1, "ct": "AA", "iv": "BB", "salt": "CC" }`

	if err := ValidateEnvelope([]byte(env), len(env)); err != nil {
		t.Errorf("Expected envelope of exactly the maximum size to pass, got %v", err)
	}
	if err := ValidateEnvelope([]byte(env), len(env)-1); !errors.Is(err, secrets.ErrInvalidEnvelope) {
		t.Errorf("Expected ErrInvalidEnvelope one byte over the maximum, got %v", err)
	}
}
