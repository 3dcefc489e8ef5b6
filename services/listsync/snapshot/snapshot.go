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
	"fmt"
	"maps"
	"slices"
	"strings"
)

// =============================================================================
// Policies and Options
// =============================================================================

// DuplicatePolicy controls what AppendSections does with a key that is
// already present.
type DuplicatePolicy int

const (
	// PolicyReject fails the append with ErrDuplicateSection.
	PolicyReject DuplicatePolicy = iota

	// PolicyIgnore skips keys that are already present.
	PolicyIgnore
)

// String returns the string representation of the policy.
func (p DuplicatePolicy) String() string {
	switch p {
	case PolicyReject:
		return "reject"
	case PolicyIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// ParseDuplicatePolicy converts a configuration string into a policy.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return PolicyReject, nil
	case "ignore":
		return PolicyIgnore, nil
	default:
		return PolicyReject, fmt.Errorf("unknown duplicate section policy %q", s)
	}
}

// Option configures a new snapshot.
type Option func(*options)

type options struct {
	duplicates DuplicatePolicy
}

// WithDuplicateSections sets the duplicate section policy.
// Default: PolicyReject.
func WithDuplicateSections(p DuplicatePolicy) Option {
	return func(o *options) {
		o.duplicates = p
	}
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is an immutable ordered list of sections and their items.
//
// The zero value and a nil *Snapshot are both valid empty snapshots. Every
// mutator returns a new Snapshot and never modifies the receiver.
//
// Thread Safety: Safe for concurrent reads. There are no writers.
type Snapshot[S, I Key] struct {
	policy DuplicatePolicy

	// sections is the section order.
	sections []S

	// items holds the ordered item keys of each section. Slices are shared
	// between snapshots and must never be written in place.
	items map[S][]I

	// sectionOf is the global item index used for uniqueness checks.
	sectionOf map[I]S

	payloads map[I]any
	reloaded map[I]struct{}
}

// Empty returns a snapshot with no sections.
func Empty[S, I Key](opts ...Option) *Snapshot[S, I] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Snapshot[S, I]{
		policy:    o.duplicates,
		items:     make(map[S][]I),
		sectionOf: make(map[I]S),
	}
}

// clone returns a copy whose maps can be modified without affecting s.
//
// Item slices are shared; writers must replace a section's slice rather than
// writing through it.
func (s *Snapshot[S, I]) clone() *Snapshot[S, I] {
	if s == nil {
		return Empty[S, I]()
	}
	c := &Snapshot[S, I]{
		policy:    s.policy,
		sections:  slices.Clone(s.sections),
		items:     make(map[S][]I, len(s.items)),
		sectionOf: make(map[I]S, len(s.sectionOf)),
	}
	maps.Copy(c.items, s.items)
	maps.Copy(c.sectionOf, s.sectionOf)
	if len(s.payloads) > 0 {
		c.payloads = maps.Clone(s.payloads)
	}
	if len(s.reloaded) > 0 {
		c.reloaded = maps.Clone(s.reloaded)
	}
	return c
}

// -----------------------------------------------------------------------------
// Mutators (each returns a new Snapshot)
// -----------------------------------------------------------------------------

// AppendSections appends section keys to the end of the section order.
//
// Description:
//
//	Under PolicyReject a key that already exists, or that repeats within
//	keys, fails the whole call with ErrDuplicateSection. Under PolicyIgnore
//	such keys are skipped.
//
// Outputs:
//   - *Snapshot: The new snapshot. Nil on error.
//   - error: An *InvariantError wrapping ErrDuplicateSection.
func (s *Snapshot[S, I]) AppendSections(keys ...S) (*Snapshot[S, I], error) {
	return s.ToBuilder().AppendSections(keys...).Build()
}

// AppendItems appends item keys to a section.
//
// Description:
//
//	The target is the named section, or the last section in the order when
//	section is omitted. The call fails as a whole when any key already exists
//	anywhere in the snapshot or repeats within items.
//
// Inputs:
//   - items: Item keys to append, in display order.
//   - section: Optional target section. Only the first value is used.
//
// Outputs:
//   - *Snapshot: The new snapshot. Nil on error.
//   - error: An *InvariantError wrapping ErrDuplicateItem, ErrSectionNotFound
//     or ErrNoSections.
func (s *Snapshot[S, I]) AppendItems(items []I, section ...S) (*Snapshot[S, I], error) {
	return s.ToBuilder().AppendItems(items, section...).Build()
}

// InsertItems inserts items immediately before an existing item, in the
// same section.
func (s *Snapshot[S, I]) InsertItems(items []I, before I) (*Snapshot[S, I], error) {
	return s.ToBuilder().InsertItems(items, before).Build()
}

// InsertItemsAfter inserts items immediately after an existing item.
func (s *Snapshot[S, I]) InsertItemsAfter(items []I, after I) (*Snapshot[S, I], error) {
	return s.ToBuilder().InsertItemsAfter(items, after).Build()
}

// DeleteItems removes items along with their payloads and reload marks.
// Unknown keys fail with ErrItemNotFound.
func (s *Snapshot[S, I]) DeleteItems(items ...I) (*Snapshot[S, I], error) {
	return s.ToBuilder().DeleteItems(items...).Build()
}

// DeleteSections removes sections and every item they contain.
func (s *Snapshot[S, I]) DeleteSections(keys ...S) (*Snapshot[S, I], error) {
	return s.ToBuilder().DeleteSections(keys...).Build()
}

// ReloadItems marks items whose content changed without an identity change.
//
// The diff engine turns marked items that survive in place into reload
// operations. Use this when payloads are not comparable.
func (s *Snapshot[S, I]) ReloadItems(items ...I) (*Snapshot[S, I], error) {
	return s.ToBuilder().ReloadItems(items...).Build()
}

// WithPayload associates a render payload with an item.
func (s *Snapshot[S, I]) WithPayload(item I, payload any) (*Snapshot[S, I], error) {
	return s.ToBuilder().SetPayload(item, payload).Build()
}

// MustAppendSections is AppendSections that panics on error.
//
// Use it in tests and static wiring where a duplicate key is a programming
// error that must stop the process.
func (s *Snapshot[S, I]) MustAppendSections(keys ...S) *Snapshot[S, I] {
	next, err := s.AppendSections(keys...)
	if err != nil {
		panic(err)
	}
	return next
}

// MustAppendItems is AppendItems that panics on error.
func (s *Snapshot[S, I]) MustAppendItems(items []I, section ...S) *Snapshot[S, I] {
	next, err := s.AppendItems(items, section...)
	if err != nil {
		panic(err)
	}
	return next
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

// SectionCount returns the number of sections.
func (s *Snapshot[S, I]) SectionCount() int {
	if s == nil {
		return 0
	}
	return len(s.sections)
}

// ItemCount returns the number of items across all sections.
func (s *Snapshot[S, I]) ItemCount() int {
	if s == nil {
		return 0
	}
	return len(s.sectionOf)
}

// Sections returns a copy of the section order.
func (s *Snapshot[S, I]) Sections() []S {
	if s == nil {
		return nil
	}
	return slices.Clone(s.sections)
}

// Items returns a copy of the items of a section, or nil if the section is
// not present.
func (s *Snapshot[S, I]) Items(section S) []I {
	if s == nil {
		return nil
	}
	return slices.Clone(s.items[section])
}

// AllItems returns every item key in display order.
func (s *Snapshot[S, I]) AllItems() []I {
	if s == nil {
		return nil
	}
	out := make([]I, 0, len(s.sectionOf))
	for _, sec := range s.sections {
		out = append(out, s.items[sec]...)
	}
	return out
}

// ContainsSection reports whether the section key is present.
func (s *Snapshot[S, I]) ContainsSection(section S) bool {
	if s == nil {
		return false
	}
	_, ok := s.items[section]
	return ok
}

// ContainsItem reports whether the item key is present.
func (s *Snapshot[S, I]) ContainsItem(item I) bool {
	if s == nil {
		return false
	}
	_, ok := s.sectionOf[item]
	return ok
}

// SectionOf returns the section that owns item.
func (s *Snapshot[S, I]) SectionOf(item I) (S, bool) {
	var zero S
	if s == nil {
		return zero, false
	}
	sec, ok := s.sectionOf[item]
	return sec, ok
}

// SectionIndex returns the position of a section in the section order, or -1.
func (s *Snapshot[S, I]) SectionIndex(section S) int {
	if s == nil {
		return -1
	}
	return slices.Index(s.sections, section)
}

// IndexOf returns the location of item, or false if it is not present.
func (s *Snapshot[S, I]) IndexOf(item I) (Location[S], bool) {
	sec, ok := s.SectionOf(item)
	if !ok {
		return Location[S]{}, false
	}
	return Location[S]{Section: sec, Index: slices.Index(s.items[sec], item)}, true
}

// Payload returns the render payload of item, if one was set.
func (s *Snapshot[S, I]) Payload(item I) (any, bool) {
	if s == nil || s.payloads == nil {
		return nil, false
	}
	p, ok := s.payloads[item]
	return p, ok
}

// IsReloaded reports whether item carries an explicit reload mark.
func (s *Snapshot[S, I]) IsReloaded(item I) bool {
	if s == nil || s.reloaded == nil {
		return false
	}
	_, ok := s.reloaded[item]
	return ok
}

// ReloadedItems returns the explicitly marked items in display order.
func (s *Snapshot[S, I]) ReloadedItems() []I {
	if s == nil || len(s.reloaded) == 0 {
		return nil
	}
	var out []I
	for _, sec := range s.sections {
		for _, it := range s.items[sec] {
			if _, ok := s.reloaded[it]; ok {
				out = append(out, it)
			}
		}
	}
	return out
}

// DuplicatePolicy returns the snapshot's duplicate section policy.
func (s *Snapshot[S, I]) DuplicatePolicy() DuplicatePolicy {
	if s == nil {
		return PolicyReject
	}
	return s.policy
}

// Equal reports whether both snapshots have the same sections and items in
// the same order. Payloads and reload marks are not compared.
func (s *Snapshot[S, I]) Equal(other *Snapshot[S, I]) bool {
	if s.SectionCount() != other.SectionCount() || s.ItemCount() != other.ItemCount() {
		return false
	}
	if s.SectionCount() == 0 {
		return true
	}
	if !slices.Equal(s.sections, other.sections) {
		return false
	}
	for _, sec := range s.sections {
		if !slices.Equal(s.items[sec], other.items[sec]) {
			return false
		}
	}
	return true
}

// Validate re-checks the snapshot invariants.
//
// Description:
//
//	Mutators already enforce the invariants, so a failure here means the
//	value was assembled outside this package (for example a struct copy that
//	was later modified through reflection). The diff engine calls Validate
//	before diffing and refuses to produce a script for a corrupt snapshot.
//
// Outputs:
//   - error: Non-nil wrapping ErrCorrupt, ErrDuplicateSection or
//     ErrDuplicateItem.
func (s *Snapshot[S, I]) Validate() error {
	if s == nil {
		return nil
	}
	if len(s.items) != len(s.sections) {
		return fmt.Errorf("%w: %d sections in order, %d in index", ErrCorrupt, len(s.sections), len(s.items))
	}
	seenSections := make(map[S]struct{}, len(s.sections))
	seenItems := make(map[I]struct{}, len(s.sectionOf))
	for _, sec := range s.sections {
		if _, dup := seenSections[sec]; dup {
			return invariant("validate", sec, ErrDuplicateSection)
		}
		seenSections[sec] = struct{}{}
		list, ok := s.items[sec]
		if !ok {
			return invariant("validate", sec, ErrSectionNotFound)
		}
		for _, it := range list {
			if _, dup := seenItems[it]; dup {
				return invariant("validate", it, ErrDuplicateItem)
			}
			seenItems[it] = struct{}{}
			if owner, ok := s.sectionOf[it]; !ok || owner != sec {
				return fmt.Errorf("%w: item %v indexed under the wrong section", ErrCorrupt, it)
			}
		}
	}
	if len(seenItems) != len(s.sectionOf) {
		return fmt.Errorf("%w: item index holds %d orphaned entries", ErrCorrupt, len(s.sectionOf)-len(seenItems))
	}
	return nil
}

// String renders the snapshot as "sec[a b] sec2[c]" for logs and tests.
func (s *Snapshot[S, I]) String() string {
	if s.SectionCount() == 0 {
		return "<empty>"
	}
	var b strings.Builder
	for i, sec := range s.sections {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%v[", sec)
		for j, it := range s.items[sec] {
			if j > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%v", it)
		}
		b.WriteByte(']')
	}
	return b.String()
}
