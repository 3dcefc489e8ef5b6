// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"errors"
	"fmt"
	"strings"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidSnapshot is returned by Compute when either input fails
	// validation. No script is produced.
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// ErrOutOfRange is returned when an op addresses a position that does not
	// exist in the current list.
	ErrOutOfRange = errors.New("index out of range")

	// ErrKeyMismatch is returned when the key at an op's position is not the
	// key the op names. This is the usual symptom of a stale baseline.
	ErrKeyMismatch = errors.New("key does not match position")

	// ErrDuplicateKey is returned when an insert would duplicate a key.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrUnknownSection is returned for an item op on a missing section.
	ErrUnknownSection = errors.New("unknown section")

	// ErrUnknownOp is returned for an op with an unrecognised kind.
	ErrUnknownOp = errors.New("unknown op kind")

	// ErrPlanDiverged is returned when a computed plan does not reproduce its
	// target order. It indicates a bug in this package.
	ErrPlanDiverged = errors.New("edit plan does not reach target order")
)

// =============================================================================
// Options
// =============================================================================

// MovePolicy decides how repositioned elements are expressed.
type MovePolicy int

const (
	// PreferMoves expresses every repositioned element as a move.
	PreferMoves MovePolicy = iota

	// PreferDeleteInsert expresses repositioned elements as a delete plus an
	// insert. Sections replaced this way are reinserted with their items.
	PreferDeleteInsert
)

// String returns the string representation of the policy.
func (p MovePolicy) String() string {
	switch p {
	case PreferMoves:
		return "moves"
	case PreferDeleteInsert:
		return "delete-insert"
	default:
		return "unknown"
	}
}

// ParseMovePolicy converts a configuration string into a policy.
func ParseMovePolicy(s string) (MovePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "moves":
		return PreferMoves, nil
	case "delete-insert":
		return PreferDeleteInsert, nil
	default:
		return PreferMoves, fmt.Errorf("unknown move policy %q", s)
	}
}

// Options configures Compute.
type Options[I comparable] struct {
	// Reload reports whether a surviving item's content changed.
	// Default: the new snapshot's explicit reload marks.
	Reload func(item I) bool

	// Moves selects how repositioned elements are expressed.
	// Default: PreferMoves.
	Moves MovePolicy
}
