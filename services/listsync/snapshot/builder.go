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
	"slices"
)

// Builder accumulates snapshot mutations without copying on every call.
//
// Description:
//
//	A Builder is the efficient way to assemble a large snapshot: it owns a
//	private copy and mutates it in place until Build. The first invariant
//	violation is recorded and every later call becomes a no-op, so a chain
//	of calls can be checked once:
//
//	    snap, err := snapshot.NewBuilder[string, int]().
//	        AppendSections("fruits").
//	        AppendItems([]int{1, 2, 3}).
//	        Build()
//
//	A rejected call leaves the builder exactly as it was before that call.
//
// Thread Safety: Not safe for concurrent use. The built Snapshot is.
type Builder[S, I Key] struct {
	snap   *Snapshot[S, I]
	frozen bool
	err    error
}

// NewBuilder returns a builder for an empty snapshot.
func NewBuilder[S, I Key](opts ...Option) *Builder[S, I] {
	return &Builder[S, I]{snap: Empty[S, I](opts...)}
}

// ToBuilder returns a builder seeded with a private copy of s.
func (s *Snapshot[S, I]) ToBuilder() *Builder[S, I] {
	return &Builder[S, I]{snap: s.clone()}
}

// Err returns the first recorded invariant violation.
func (b *Builder[S, I]) Err() error {
	return b.err
}

// Build returns the snapshot, or the first recorded error.
//
// The builder may keep being used afterwards; it copies its state before the
// next mutation so the returned snapshot stays immutable.
func (b *Builder[S, I]) Build() (*Snapshot[S, I], error) {
	if b.err != nil {
		return nil, b.err
	}
	b.frozen = true
	return b.snap, nil
}

// writable returns the snapshot to mutate, copying it first if it has been
// handed out by Build.
func (b *Builder[S, I]) writable() *Snapshot[S, I] {
	if b.frozen {
		b.snap = b.snap.clone()
		b.frozen = false
	}
	return b.snap
}

func (b *Builder[S, I]) fail(err error) *Builder[S, I] {
	if b.err == nil {
		b.err = err
	}
	return b
}

// AppendSections appends section keys. See Snapshot.AppendSections.
func (b *Builder[S, I]) AppendSections(keys ...S) *Builder[S, I] {
	if b.err != nil {
		return b
	}
	cur := b.snap
	fresh := make([]S, 0, len(keys))
	batch := make(map[S]struct{}, len(keys))
	for _, k := range keys {
		_, exists := cur.items[k]
		_, repeated := batch[k]
		if exists || repeated {
			if cur.policy == PolicyIgnore {
				continue
			}
			return b.fail(invariant("append sections", k, ErrDuplicateSection))
		}
		batch[k] = struct{}{}
		fresh = append(fresh, k)
	}
	if len(fresh) == 0 {
		return b
	}
	w := b.writable()
	for _, k := range fresh {
		w.sections = append(w.sections, k)
		w.items[k] = nil
	}
	return b
}

// AppendItems appends item keys to a section. See Snapshot.AppendItems.
func (b *Builder[S, I]) AppendItems(items []I, section ...S) *Builder[S, I] {
	if b.err != nil {
		return b
	}
	target, err := b.resolveSection("append items", section)
	if err != nil {
		return b.fail(err)
	}
	if err := b.checkNew("append items", items); err != nil {
		return b.fail(err)
	}
	if len(items) == 0 {
		return b
	}
	w := b.writable()
	list := w.items[target]
	next := make([]I, 0, len(list)+len(items))
	next = append(next, list...)
	next = append(next, items...)
	w.items[target] = next
	for _, it := range items {
		w.sectionOf[it] = target
	}
	return b
}

// InsertItems inserts items before an existing item.
func (b *Builder[S, I]) InsertItems(items []I, before I) *Builder[S, I] {
	return b.insertAt("insert items", items, before, 0)
}

// InsertItemsAfter inserts items after an existing item.
func (b *Builder[S, I]) InsertItemsAfter(items []I, after I) *Builder[S, I] {
	return b.insertAt("insert items after", items, after, 1)
}

func (b *Builder[S, I]) insertAt(op string, items []I, anchor I, offset int) *Builder[S, I] {
	if b.err != nil {
		return b
	}
	sec, ok := b.snap.sectionOf[anchor]
	if !ok {
		return b.fail(invariant(op, anchor, ErrItemNotFound))
	}
	if err := b.checkNew(op, items); err != nil {
		return b.fail(err)
	}
	if len(items) == 0 {
		return b
	}
	w := b.writable()
	list := w.items[sec]
	at := slices.Index(list, anchor) + offset
	next := make([]I, 0, len(list)+len(items))
	next = append(next, list[:at]...)
	next = append(next, items...)
	next = append(next, list[at:]...)
	w.items[sec] = next
	for _, it := range items {
		w.sectionOf[it] = sec
	}
	return b
}

// DeleteItems removes items. See Snapshot.DeleteItems.
func (b *Builder[S, I]) DeleteItems(items ...I) *Builder[S, I] {
	if b.err != nil {
		return b
	}
	for _, it := range items {
		if _, ok := b.snap.sectionOf[it]; !ok {
			return b.fail(invariant("delete items", it, ErrItemNotFound))
		}
	}
	if len(items) == 0 {
		return b
	}
	w := b.writable()
	gone := make(map[I]struct{}, len(items))
	touched := make(map[S]struct{})
	for _, it := range items {
		gone[it] = struct{}{}
		touched[w.sectionOf[it]] = struct{}{}
		delete(w.sectionOf, it)
		delete(w.payloads, it)
		delete(w.reloaded, it)
	}
	for sec := range touched {
		w.items[sec] = slices.DeleteFunc(slices.Clone(w.items[sec]), func(it I) bool {
			_, drop := gone[it]
			return drop
		})
	}
	return b
}

// DeleteSections removes sections and their items.
func (b *Builder[S, I]) DeleteSections(keys ...S) *Builder[S, I] {
	if b.err != nil {
		return b
	}
	for _, k := range keys {
		if _, ok := b.snap.items[k]; !ok {
			return b.fail(invariant("delete sections", k, ErrSectionNotFound))
		}
	}
	if len(keys) == 0 {
		return b
	}
	w := b.writable()
	drop := make(map[S]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
		for _, it := range w.items[k] {
			delete(w.sectionOf, it)
			delete(w.payloads, it)
			delete(w.reloaded, it)
		}
		delete(w.items, k)
	}
	w.sections = slices.DeleteFunc(w.sections, func(s S) bool {
		_, ok := drop[s]
		return ok
	})
	return b
}

// ReloadItems marks items for reload. See Snapshot.ReloadItems.
func (b *Builder[S, I]) ReloadItems(items ...I) *Builder[S, I] {
	if b.err != nil {
		return b
	}
	for _, it := range items {
		if _, ok := b.snap.sectionOf[it]; !ok {
			return b.fail(invariant("reload items", it, ErrItemNotFound))
		}
	}
	if len(items) == 0 {
		return b
	}
	w := b.writable()
	if w.reloaded == nil {
		w.reloaded = make(map[I]struct{}, len(items))
	}
	for _, it := range items {
		w.reloaded[it] = struct{}{}
	}
	return b
}

// SetPayload associates a render payload with an existing item.
func (b *Builder[S, I]) SetPayload(item I, payload any) *Builder[S, I] {
	if b.err != nil {
		return b
	}
	if _, ok := b.snap.sectionOf[item]; !ok {
		return b.fail(invariant("set payload", item, ErrItemNotFound))
	}
	w := b.writable()
	if w.payloads == nil {
		w.payloads = make(map[I]any)
	}
	w.payloads[item] = payload
	return b
}

// resolveSection picks the explicit section or the last one appended.
func (b *Builder[S, I]) resolveSection(op string, section []S) (S, error) {
	var zero S
	if len(section) > 0 {
		if _, ok := b.snap.items[section[0]]; !ok {
			return zero, invariant(op, section[0], ErrSectionNotFound)
		}
		return section[0], nil
	}
	if len(b.snap.sections) == 0 {
		return zero, invariant(op, "<last section>", ErrNoSections)
	}
	return b.snap.sections[len(b.snap.sections)-1], nil
}

// checkNew verifies none of items exist yet and none repeat within items.
func (b *Builder[S, I]) checkNew(op string, items []I) error {
	batch := make(map[I]struct{}, len(items))
	for _, it := range items {
		if _, exists := b.snap.sectionOf[it]; exists {
			return invariant(op, it, ErrDuplicateItem)
		}
		if _, repeated := batch[it]; repeated {
			return invariant(op, it, ErrDuplicateItem)
		}
		batch[it] = struct{}{}
	}
	return nil
}
