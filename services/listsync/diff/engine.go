// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff computes edit scripts between two snapshots.
//
// Compute is a pure function. It matches sections and items purely by key,
// keeps the longest run of elements whose relative order did not change, and
// expresses everything else as deletes, inserts and moves. Items that change
// section become a delete from the old section plus an insert into the new
// one; there is no cross-section move.
//
// Ops are emitted in a fixed order:
//
//	item deletes (descending) → section deletes (descending) →
//	section inserts → section moves → item inserts → item moves → reloads
//
// Every index is sequential: it is valid against the list produced by all
// earlier ops. Replay applies a script to a snapshot and is the reference
// interpreter for that contract.
package diff

import (
	"fmt"
	"slices"

	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

// itemPlan is the per-section work for a section that survives.
type itemPlan[I snapshot.Key] struct {
	// cur holds the old items that stay in the section, in old order.
	cur []I

	// kept indexes cur.
	kept map[I]struct{}

	// stable holds the items of cur that do not move.
	stable map[I]struct{}
}

// Compute returns the edit script that turns old into next.
//
// Description:
//
//	Nil snapshots are treated as empty. Both snapshots are validated first;
//	a corrupt input yields ErrInvalidSnapshot and no script, because a
//	partial script is worse than none.
//
// Inputs:
//   - old: The baseline currently displayed.
//   - next: The snapshot to display.
//   - opts: Reload predicate and move policy.
//
// Outputs:
//   - *EditScript: The ops in execution order. Empty when nothing changed.
//   - error: ErrInvalidSnapshot, or ErrPlanDiverged on an internal fault.
//
// Example:
//
//	old: fruits[apple banana]
//	new: fruits[banana cherry]
//	ops: deleteItem fruits:apple@0; insertItem fruits:cherry@1
func Compute[S, I snapshot.Key](old, next *snapshot.Snapshot[S, I], opts Options[I]) (*EditScript[S, I], error) {
	if old == nil {
		old = snapshot.Empty[S, I]()
	}
	if next == nil {
		next = snapshot.Empty[S, I]()
	}
	if err := old.Validate(); err != nil {
		return nil, fmt.Errorf("%w: old: %w", ErrInvalidSnapshot, err)
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("%w: new: %w", ErrInvalidSnapshot, err)
	}
	reload := opts.Reload
	if reload == nil {
		reload = next.IsReloaded
	}

	// -------------------------------------------------------------------------
	// Section matching
	// -------------------------------------------------------------------------

	oldSecs := old.Sections()
	newSecs := next.Sections()
	commonOld := keep(oldSecs, next.ContainsSection)
	commonNew := keep(newSecs, old.ContainsSection)
	secStable := stableSet(commonOld, commonNew)

	survives := func(s S) bool {
		if !next.ContainsSection(s) || !old.ContainsSection(s) {
			return false
		}
		if opts.Moves == PreferDeleteInsert {
			_, ok := secStable[s]
			return ok
		}
		return true
	}

	// -------------------------------------------------------------------------
	// Item matching inside surviving sections
	// -------------------------------------------------------------------------

	plans := make(map[S]*itemPlan[I])
	for _, sec := range newSecs {
		if !survives(sec) {
			continue
		}
		cur := keep(old.Items(sec), func(it I) bool {
			owner, ok := next.SectionOf(it)
			return ok && owner == sec
		})
		target := keep(next.Items(sec), func(it I) bool {
			owner, ok := old.SectionOf(it)
			return ok && owner == sec
		})
		stable := stableSet(cur, target)
		if opts.Moves == PreferDeleteInsert {
			cur = keep(cur, func(it I) bool {
				_, ok := stable[it]
				return ok
			})
		}
		kept := make(map[I]struct{}, len(cur))
		for _, it := range cur {
			kept[it] = struct{}{}
		}
		plans[sec] = &itemPlan[I]{cur: cur, kept: kept, stable: stable}
	}

	var ops []Op[S, I]

	// Item deletes, highest section then highest index first.
	for i := len(oldSecs) - 1; i >= 0; i-- {
		sec := oldSecs[i]
		plan, ok := plans[sec]
		if !ok {
			continue
		}
		items := old.Items(sec)
		for j := len(items) - 1; j >= 0; j-- {
			if _, ok := plan.kept[items[j]]; ok {
				continue
			}
			ops = append(ops, Op[S, I]{Kind: OpDeleteItem, Section: sec, Item: items[j], Index: j})
		}
	}

	// Section deletes, highest index first. Items go with them.
	for i := len(oldSecs) - 1; i >= 0; i-- {
		if !survives(oldSecs[i]) {
			ops = append(ops, Op[S, I]{Kind: OpDeleteSection, Section: oldSecs[i], Index: i})
		}
	}

	// Section inserts and moves.
	secInserts, secMoves, err := arrange(keep(oldSecs, survives), newSecs, secStable)
	if err != nil {
		return nil, fmt.Errorf("sections: %w", err)
	}
	for _, st := range secInserts {
		ops = append(ops, Op[S, I]{Kind: OpInsertSection, Section: st.key, Index: st.index, Items: next.Items(st.key)})
	}
	for _, mv := range secMoves {
		ops = append(ops, Op[S, I]{Kind: OpMoveSection, Section: mv.key, Index: mv.from, To: mv.to})
	}

	// Item inserts and moves, per surviving section in display order.
	var itemMoves []Op[S, I]
	for _, sec := range newSecs {
		plan, ok := plans[sec]
		if !ok {
			continue
		}
		inserts, moves, err := arrange(plan.cur, next.Items(sec), plan.stable)
		if err != nil {
			return nil, fmt.Errorf("section %v: %w", sec, err)
		}
		for _, st := range inserts {
			ops = append(ops, Op[S, I]{Kind: OpInsertItem, Section: sec, Item: st.key, Index: st.index})
		}
		for _, mv := range moves {
			itemMoves = append(itemMoves, Op[S, I]{Kind: OpMoveItem, Section: sec, Item: mv.key, Index: mv.from, To: mv.to})
		}
	}
	ops = append(ops, itemMoves...)

	// Reloads use final positions and only touch items that stayed put. A row
	// that moved is already redrawn by its move.
	for _, sec := range newSecs {
		plan, ok := plans[sec]
		if !ok {
			continue
		}
		for j, it := range next.Items(sec) {
			if _, ok := plan.stable[it]; ok && reload(it) {
				ops = append(ops, Op[S, I]{Kind: OpReloadItem, Section: sec, Item: it, Index: j})
			}
		}
	}

	return newScript(old, next, ops), nil
}

// keep returns the elements of s for which fn is true. s is not modified.
func keep[K any](s []K, fn func(K) bool) []K {
	return slices.DeleteFunc(slices.Clone(s), func(k K) bool { return !fn(k) })
}
