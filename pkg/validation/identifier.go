// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for identifiers read from
// user-provided files.
//
// Section keys and item identifiers end up in log lines, terminal output and
// file names, so they are restricted to printable text of bounded length.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxIdentifierLen is the longest identifier accepted, in bytes.
const MaxIdentifierLen = 256

// ErrInvalidIdentifier is wrapped by every identifier validation failure.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// ValidateIdentifier validates a section key or item identifier.
//
// Valid identifiers:
//   - 1-256 bytes of valid UTF-8
//   - No control characters (newlines, tabs, escape sequences)
//   - No leading or trailing whitespace
//
// Example:
//
//	if err := validation.ValidateIdentifier(id); err != nil {
//	    return fmt.Errorf("item %d: %w", i, err)
//	}
func ValidateIdentifier(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	case len(id) > MaxIdentifierLen:
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidIdentifier, len(id), MaxIdentifierLen)
	case !utf8.ValidString(id):
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidIdentifier, id)
	case strings.TrimSpace(id) != id:
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidIdentifier, id)
	}
	if i := strings.IndexFunc(id, unicode.IsControl); i >= 0 {
		return fmt.Errorf("%w: %q has a control character at byte %d", ErrInvalidIdentifier, id, i)
	}
	return nil
}

// ValidateIdentifiers validates every id and reports all failures at once.
func ValidateIdentifiers(ids []string) error {
	var errs []error
	for _, id := range ids {
		if err := ValidateIdentifier(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
