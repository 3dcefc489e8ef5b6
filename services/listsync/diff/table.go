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
	"maps"
	"slices"

	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

// =============================================================================
// Target
// =============================================================================

// Target receives the ops of a script one at a time.
//
// Each method must reject an op that does not fit the current state
// instead of guessing. Item ops identify the section by key.
type Target[S, I snapshot.Key] interface {
	InsertSection(index int, section S, items []I) error
	DeleteSection(index int, section S) error
	MoveSection(from, to int, section S) error
	InsertItem(section S, index int, item I) error
	DeleteItem(section S, index int, item I) error
	MoveItem(section S, from, to int, item I) error
	ReloadItem(section S, index int, item I) error
}

// Execute feeds ops to t in order and stops at the first rejection.
func Execute[S, I snapshot.Key](ops []Op[S, I], t Target[S, I]) error {
	for i, op := range ops {
		var err error
		switch op.Kind {
		case OpInsertSection:
			err = t.InsertSection(op.Index, op.Section, op.Items)
		case OpDeleteSection:
			err = t.DeleteSection(op.Index, op.Section)
		case OpMoveSection:
			err = t.MoveSection(op.Index, op.To, op.Section)
		case OpInsertItem:
			err = t.InsertItem(op.Section, op.Index, op.Item)
		case OpDeleteItem:
			err = t.DeleteItem(op.Section, op.Index, op.Item)
		case OpMoveItem:
			err = t.MoveItem(op.Section, op.Index, op.To, op.Item)
		case OpReloadItem:
			err = t.ReloadItem(op.Section, op.Index, op.Item)
		default:
			err = fmt.Errorf("%w: %d", ErrUnknownOp, op.Kind)
		}
		if err != nil {
			return fmt.Errorf("op %d (%s): %w", i, op, err)
		}
	}
	return nil
}

// =============================================================================
// Table
// =============================================================================

// Table is a mutable sectioned list that enforces the same uniqueness rules
// as a Snapshot and checks every op against its current state.
//
// It is the reference Target: Replay runs scripts against it, and in-memory
// LiveList implementations use it as their working copy.
//
// Thread Safety: Not safe for concurrent use.
type Table[S, I snapshot.Key] struct {
	sections []S
	items    map[S][]I
	owner    map[I]S

	// reloads counts ReloadItem calls per item since the table was created.
	reloads map[I]int
}

// NewTable returns a table holding the structure of s.
func NewTable[S, I snapshot.Key](s *snapshot.Snapshot[S, I]) *Table[S, I] {
	t := &Table[S, I]{
		sections: s.Sections(),
		items:    make(map[S][]I, s.SectionCount()),
		owner:    make(map[I]S, s.ItemCount()),
		reloads:  make(map[I]int),
	}
	for _, sec := range t.sections {
		list := s.Items(sec)
		t.items[sec] = list
		for _, it := range list {
			t.owner[it] = sec
		}
	}
	return t
}

// Clone returns an independent copy.
func (t *Table[S, I]) Clone() *Table[S, I] {
	c := &Table[S, I]{
		sections: slices.Clone(t.sections),
		items:    make(map[S][]I, len(t.items)),
		owner:    maps.Clone(t.owner),
		reloads:  maps.Clone(t.reloads),
	}
	for sec, list := range t.items {
		c.items[sec] = slices.Clone(list)
	}
	return c
}

// Snapshot converts the table back into an immutable snapshot.
func (t *Table[S, I]) Snapshot() (*snapshot.Snapshot[S, I], error) {
	b := snapshot.NewBuilder[S, I]()
	for _, sec := range t.sections {
		b.AppendSections(sec).AppendItems(t.items[sec], sec)
	}
	return b.Build()
}

// Sections returns a copy of the section order.
func (t *Table[S, I]) Sections() []S {
	return slices.Clone(t.sections)
}

// Items returns a copy of a section's items.
func (t *Table[S, I]) Items(section S) []I {
	return slices.Clone(t.items[section])
}

// ItemCount returns the number of items.
func (t *Table[S, I]) ItemCount() int {
	return len(t.owner)
}

// Reloads returns how many times item has been reloaded.
func (t *Table[S, I]) Reloads(item I) int {
	return t.reloads[item]
}

// -----------------------------------------------------------------------------
// Target implementation
// -----------------------------------------------------------------------------

// InsertSection inserts a section with its items at index.
func (t *Table[S, I]) InsertSection(index int, section S, items []I) error {
	if index < 0 || index > len(t.sections) {
		return fmt.Errorf("insert section %v at %d of %d: %w", section, index, len(t.sections), ErrOutOfRange)
	}
	if _, ok := t.items[section]; ok {
		return fmt.Errorf("insert section %v: %w", section, ErrDuplicateKey)
	}
	seen := make(map[I]struct{}, len(items))
	for _, it := range items {
		_, exists := t.owner[it]
		_, repeated := seen[it]
		if exists || repeated {
			return fmt.Errorf("insert section %v item %v: %w", section, it, ErrDuplicateKey)
		}
		seen[it] = struct{}{}
	}
	t.sections = slices.Insert(t.sections, index, section)
	t.items[section] = slices.Clone(items)
	for _, it := range items {
		t.owner[it] = section
	}
	return nil
}

// DeleteSection removes the section at index, which must be section.
func (t *Table[S, I]) DeleteSection(index int, section S) error {
	if err := t.checkSection("delete section", index, section); err != nil {
		return err
	}
	for _, it := range t.items[section] {
		delete(t.owner, it)
	}
	delete(t.items, section)
	t.sections = slices.Delete(t.sections, index, index+1)
	return nil
}

// MoveSection removes the section at from and reinserts it at to.
func (t *Table[S, I]) MoveSection(from, to int, section S) error {
	if err := t.checkSection("move section", from, section); err != nil {
		return err
	}
	if to < 0 || to > len(t.sections)-1 {
		return fmt.Errorf("move section %v to %d of %d: %w", section, to, len(t.sections)-1, ErrOutOfRange)
	}
	t.sections = slices.Delete(t.sections, from, from+1)
	t.sections = slices.Insert(t.sections, to, section)
	return nil
}

// InsertItem inserts item at index in section.
func (t *Table[S, I]) InsertItem(section S, index int, item I) error {
	list, ok := t.items[section]
	if !ok {
		return fmt.Errorf("insert item %v into %v: %w", item, section, ErrUnknownSection)
	}
	if index < 0 || index > len(list) {
		return fmt.Errorf("insert item %v at %v@%d of %d: %w", item, section, index, len(list), ErrOutOfRange)
	}
	if _, ok := t.owner[item]; ok {
		return fmt.Errorf("insert item %v: %w", item, ErrDuplicateKey)
	}
	t.items[section] = slices.Insert(list, index, item)
	t.owner[item] = section
	return nil
}

// DeleteItem removes the item at index in section, which must be item.
func (t *Table[S, I]) DeleteItem(section S, index int, item I) error {
	if err := t.checkItem("delete item", section, index, item); err != nil {
		return err
	}
	t.items[section] = slices.Delete(t.items[section], index, index+1)
	delete(t.owner, item)
	delete(t.reloads, item)
	return nil
}

// MoveItem removes the item at from and reinserts it at to.
func (t *Table[S, I]) MoveItem(section S, from, to int, item I) error {
	if err := t.checkItem("move item", section, from, item); err != nil {
		return err
	}
	list := t.items[section]
	if to < 0 || to > len(list)-1 {
		return fmt.Errorf("move item %v to %v@%d of %d: %w", item, section, to, len(list)-1, ErrOutOfRange)
	}
	list = slices.Delete(list, from, from+1)
	t.items[section] = slices.Insert(list, to, item)
	return nil
}

// ReloadItem records a redraw of the item at index.
func (t *Table[S, I]) ReloadItem(section S, index int, item I) error {
	if err := t.checkItem("reload item", section, index, item); err != nil {
		return err
	}
	t.reloads[item]++
	return nil
}

func (t *Table[S, I]) checkSection(op string, index int, section S) error {
	if index < 0 || index >= len(t.sections) {
		return fmt.Errorf("%s %v at %d of %d: %w", op, section, index, len(t.sections), ErrOutOfRange)
	}
	if t.sections[index] != section {
		return fmt.Errorf("%s %v at %d holds %v: %w", op, section, index, t.sections[index], ErrKeyMismatch)
	}
	return nil
}

func (t *Table[S, I]) checkItem(op string, section S, index int, item I) error {
	list, ok := t.items[section]
	if !ok {
		return fmt.Errorf("%s %v in %v: %w", op, item, section, ErrUnknownSection)
	}
	if index < 0 || index >= len(list) {
		return fmt.Errorf("%s %v at %v@%d of %d: %w", op, item, section, index, len(list), ErrOutOfRange)
	}
	if list[index] != item {
		return fmt.Errorf("%s %v at %v@%d holds %v: %w", op, item, section, index, list[index], ErrKeyMismatch)
	}
	return nil
}

// =============================================================================
// Replay
// =============================================================================

// Replay applies ops to old and returns the resulting snapshot.
//
// Payloads and reload marks are not carried over; the result describes
// structure only. An op that does not fit the state produced by the ops
// before it fails the whole replay.
func Replay[S, I snapshot.Key](ops []Op[S, I], old *snapshot.Snapshot[S, I]) (*snapshot.Snapshot[S, I], error) {
	t := NewTable(old)
	if err := Execute(ops, t); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return t.Snapshot()
}
