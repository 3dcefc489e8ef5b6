// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Valid identifiers
		{"simple", "apple", false},
		{"single char", "a", false},
		{"inner spaces", "red apple", false},
		{"unicode", "pomme-de-terre ü", false},
		{"punctuation", "item:42/b", false},
		{"max length", strings.Repeat("x", MaxIdentifierLen), false},

		// Invalid identifiers
		{"empty", "", true},
		{"too long", strings.Repeat("x", MaxIdentifierLen+1), true},
		{"newline", "a\nb", true},
		{"escape sequence", "a\x1b[2Jb", true},
		{"tab", "a\tb", true},
		{"leading space", " a", true},
		{"trailing space", "a ", true},
		{"invalid utf8", "a\xffb", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentifier(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidIdentifier) {
				t.Errorf("ValidateIdentifier(%q) error = %v, expected ErrInvalidIdentifier", tt.id, err)
			}
		})
	}
}

func TestValidateIdentifiers(t *testing.T) {
	if err := ValidateIdentifiers([]string{"a", "b"}); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := ValidateIdentifiers(nil); err != nil {
		t.Errorf("expected no error for nil, got %v", err)
	}

	err := ValidateIdentifiers([]string{"a", "", "b\n"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("expected ErrInvalidIdentifier, got %v", err)
	}
	if got := strings.Count(err.Error(), "invalid identifier"); got != 2 {
		t.Errorf("expected 2 failures reported, got %d in %q", got, err.Error())
	}
}
