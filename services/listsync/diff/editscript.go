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
	"fmt"
	"slices"
	"strings"

	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

// =============================================================================
// Operation Kinds
// =============================================================================

// OpKind identifies a structural edit.
//
// The numeric order of the kinds is the order in which Compute emits them.
type OpKind int

const (
	// OpDeleteItem removes an item from a surviving section.
	OpDeleteItem OpKind = iota

	// OpDeleteSection removes a section and every item it still holds.
	OpDeleteSection

	// OpInsertSection inserts a section together with its items.
	OpInsertSection

	// OpMoveSection moves a section and its items.
	OpMoveSection

	// OpInsertItem inserts an item into an existing section.
	OpInsertItem

	// OpMoveItem moves an item within its section.
	OpMoveItem

	// OpReloadItem redraws an item in place.
	OpReloadItem
)

// String returns the string representation of the kind.
func (k OpKind) String() string {
	switch k {
	case OpDeleteItem:
		return "deleteItem"
	case OpDeleteSection:
		return "deleteSection"
	case OpInsertSection:
		return "insertSection"
	case OpMoveSection:
		return "moveSection"
	case OpInsertItem:
		return "insertItem"
	case OpMoveItem:
		return "moveItem"
	case OpReloadItem:
		return "reloadItem"
	default:
		return "unknown"
	}
}

// IsSectionOp reports whether the kind acts on a whole section.
func (k OpKind) IsSectionOp() bool {
	return k == OpDeleteSection || k == OpInsertSection || k == OpMoveSection
}

// =============================================================================
// Op
// =============================================================================

// Op is a single structural edit.
//
// Indices are sequential: each one refers to the list as it stands at the
// moment the op is applied, after every earlier op in the script.
//
//   - Section ops: Index is the section position. For OpMoveSection the
//     section is removed at Index and reinserted at To, where To is a position
//     in the list after the removal. OpInsertSection carries the section's
//     items in Items.
//   - Item ops: Section names the owning section by key and Index is the
//     position inside it. OpMoveItem uses Index and To the same way section
//     moves do.
type Op[S, I snapshot.Key] struct {
	Kind    OpKind
	Section S
	Item    I
	Index   int
	To      int
	Items   []I
}

// String renders the op for logs, e.g. "moveItem fruits:apple 0->2".
func (o Op[S, I]) String() string {
	switch o.Kind {
	case OpInsertSection:
		return fmt.Sprintf("%s %v@%d %v", o.Kind, o.Section, o.Index, o.Items)
	case OpDeleteSection:
		return fmt.Sprintf("%s %v@%d", o.Kind, o.Section, o.Index)
	case OpMoveSection:
		return fmt.Sprintf("%s %v %d->%d", o.Kind, o.Section, o.Index, o.To)
	case OpMoveItem:
		return fmt.Sprintf("%s %v:%v %d->%d", o.Kind, o.Section, o.Item, o.Index, o.To)
	default:
		return fmt.Sprintf("%s %v:%v@%d", o.Kind, o.Section, o.Item, o.Index)
	}
}

// =============================================================================
// EditScript
// =============================================================================

// Counts tallies the operations in a script by kind.
type Counts struct {
	SectionInserts int
	SectionDeletes int
	SectionMoves   int
	ItemInserts    int
	ItemDeletes    int
	ItemMoves      int
	Reloads        int
}

// Total returns the number of operations.
func (c Counts) Total() int {
	return c.SectionInserts + c.SectionDeletes + c.SectionMoves +
		c.ItemInserts + c.ItemDeletes + c.ItemMoves + c.Reloads
}

func (c *Counts) add(k OpKind) {
	switch k {
	case OpInsertSection:
		c.SectionInserts++
	case OpDeleteSection:
		c.SectionDeletes++
	case OpMoveSection:
		c.SectionMoves++
	case OpInsertItem:
		c.ItemInserts++
	case OpDeleteItem:
		c.ItemDeletes++
	case OpMoveItem:
		c.ItemMoves++
	case OpReloadItem:
		c.Reloads++
	}
}

// EditScript is the ordered list of ops that turns one snapshot into another.
//
// A script is computed for one (from, to) pair and is read-only afterwards.
// It is safe to share between goroutines.
type EditScript[S, I snapshot.Key] struct {
	from   *snapshot.Snapshot[S, I]
	to     *snapshot.Snapshot[S, I]
	ops    []Op[S, I]
	counts Counts
}

func newScript[S, I snapshot.Key](from, to *snapshot.Snapshot[S, I], ops []Op[S, I]) *EditScript[S, I] {
	es := &EditScript[S, I]{from: from, to: to, ops: ops}
	for _, op := range ops {
		es.counts.add(op.Kind)
	}
	return es
}

// Ops returns a copy of the operations in execution order.
func (es *EditScript[S, I]) Ops() []Op[S, I] {
	if es == nil {
		return nil
	}
	out := slices.Clone(es.ops)
	for i := range out {
		out[i].Items = slices.Clone(out[i].Items)
	}
	return out
}

// Len returns the number of operations.
func (es *EditScript[S, I]) Len() int {
	if es == nil {
		return 0
	}
	return len(es.ops)
}

// IsEmpty reports whether the script has no operations.
func (es *EditScript[S, I]) IsEmpty() bool {
	return es.Len() == 0
}

// Counts returns the per-kind tally.
func (es *EditScript[S, I]) Counts() Counts {
	if es == nil {
		return Counts{}
	}
	return es.counts
}

// From returns the snapshot the script starts from.
func (es *EditScript[S, I]) From() *snapshot.Snapshot[S, I] {
	if es == nil {
		return nil
	}
	return es.from
}

// To returns the snapshot the script produces.
func (es *EditScript[S, I]) To() *snapshot.Snapshot[S, I] {
	if es == nil {
		return nil
	}
	return es.to
}

// String joins the ops with "; ", or returns "<no changes>".
func (es *EditScript[S, I]) String() string {
	if es.IsEmpty() {
		return "<no changes>"
	}
	parts := make([]string, len(es.ops))
	for i, op := range es.ops {
		parts[i] = op.String()
	}
	return strings.Join(parts, "; ")
}
