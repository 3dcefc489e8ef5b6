// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrDuplicateSection is returned when a section key is appended twice.
	ErrDuplicateSection = errors.New("duplicate section identifier")

	// ErrDuplicateItem is returned when an item key already exists anywhere
	// in the snapshot.
	ErrDuplicateItem = errors.New("duplicate item identifier")

	// ErrSectionNotFound is returned for a reference to a section that is not
	// part of the snapshot.
	ErrSectionNotFound = errors.New("section not found")

	// ErrItemNotFound is returned for a reference to an item that is not part
	// of the snapshot.
	ErrItemNotFound = errors.New("item not found")

	// ErrNoSections is returned when items are appended without a target
	// section and the snapshot has no sections yet.
	ErrNoSections = errors.New("snapshot has no sections")

	// ErrCorrupt is returned by Validate when internal indexes disagree.
	ErrCorrupt = errors.New("snapshot invariants violated")
)

// InvariantError describes a rejected snapshot mutation.
//
// It wraps one of the sentinel errors above so callers can match with
// errors.Is, while Op and Key identify the offending call.
type InvariantError struct {
	// Op is the mutator that was rejected, e.g. "append items".
	Op string

	// Key is the section or item key that violated the invariant.
	Key any

	// Err is the sentinel describing the violation.
	Err error
}

// Error implements error.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("snapshot %s: %v: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the wrapped sentinel.
func (e *InvariantError) Unwrap() error {
	return e.Err
}

func invariant(op string, key any, err error) error {
	return &InvariantError{Op: op, Key: key, Err: err}
}
