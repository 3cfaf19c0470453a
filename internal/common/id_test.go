// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	seen := map[string]struct{}{}
	for range 1000 {
		id, err := GenerateID()
		if err != nil {
			t.Fatalf("GenerateID failed: %v", err)
		}
		if len(id) != IDLength {
			t.Fatalf("Expected id length %d, got %d", IDLength, len(id))
		}
		if !ValidID(id) {
			t.Fatalf("Generated id %q does not validate", id)
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("Duplicate id generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestValidID(t *testing.T) {
	for _, tc := range []struct {
		name  string
		id    string
		valid bool
	}{
		{"valid", "0123456789abcdef0123456789abcdef", true},
		{"empty", "", false},
		{"short", "0123456789abcdef", false},
		{"long", "0123456789abcdef0123456789abcdef0", false},
		{"uppercase", "0123456789ABCDEF0123456789ABCDEF", false},
		{"non-hex", "0123456789abcdeg0123456789abcdef", false},
		{"path", "../../etc/passwd" + strings.Repeat("a", 16), false},
		{"multibyte", strings.Repeat("é", 16), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidID(tc.id); got != tc.valid {
				t.Errorf("ValidID(%q): expected %v, got %v", tc.id, tc.valid, got)
			}
		})
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("0123456789abcdef0123456789abcdef"); got != "01234567..." {
		t.Errorf("Expected truncated id, got %q", got)
	}
	if got := ShortID("abc"); got != "abc" {
		t.Errorf("Expected short id unchanged, got %q", got)
	}
}
