// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot provides the immutable, sectioned item list that the
// listsync engine diffs over.
//
// # Overview
//
// A Snapshot is an ordered sequence of section keys, each owning an ordered
// sequence of item keys, plus a side table of render payloads:
//
//	Snapshot
//	├── Section "fruits"  → [apple, banana]
//	├── Section "veg"     → [carrot]
//	└── payloads          → {apple: ..., carrot: ...}
//
// # Invariants
//
//   - Every section key appears exactly once.
//   - Every item key appears at most once in the whole snapshot, not just
//     within its section.
//
// Every mutator validates these invariants before touching any state and
// returns a new Snapshot, leaving the receiver untouched. A Snapshot can
// therefore be handed between goroutines without copying or locking.
//
// # Identity
//
// Section and item keys are Go type parameters constrained by Key, which is
// the comparable type set. Go's == operator is the identity contract: two keys
// are the same row when they compare equal. Mutating a value after it has been
// used as a key (for example through a pointer embedded in a struct key) is a
// caller error and leads to undefined diff results.
package snapshot

// Key is the identity constraint for section and item keys.
//
// Any comparable type works: strings, integers, small structs of comparable
// fields. Interface-typed keys must hold comparable dynamic values; storing a
// slice or map inside an interface key panics at insertion time, which is a
// caller error.
type Key interface {
	comparable
}

// Location names the position of an item inside a snapshot.
type Location[S Key] struct {
	// Section is the key of the owning section.
	Section S

	// Index is the zero-based position inside the section.
	Index int
}
