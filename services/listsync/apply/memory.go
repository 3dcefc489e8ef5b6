// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package apply

import (
	"context"
	"sync"

	"github.com/AleutianAI/listsync/services/listsync/diff"
	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

// MemoryStats counts what a MemoryList has been asked to do.
type MemoryStats struct {
	Batches  int
	Rejected int
	Reloads  int
}

// MemoryList is a transactional in-memory LiveList.
//
// Each batch runs against a private copy that replaces the visible state
// only if every op succeeds. It enforces the same uniqueness rules as a
// Snapshot and rejects stale indices, which makes it a strict stand-in for a
// real view in tests and headless tools.
//
// Thread Safety: Safe for concurrent use.
type MemoryList[S, I snapshot.Key] struct {
	mu      sync.Mutex
	table   *diff.Table[S, I]
	stats   MemoryStats
	onApply func(snap *snapshot.Snapshot[S, I])
}

// NewMemoryList returns an empty list.
func NewMemoryList[S, I snapshot.Key]() *MemoryList[S, I] {
	return &MemoryList[S, I]{table: diff.NewTable[S, I](nil)}
}

// OnApply registers fn to run with the new contents after every committed
// batch or reload. fn runs with the list locked and must not call back into
// it.
func (m *MemoryList[S, I]) OnApply(fn func(snap *snapshot.Snapshot[S, I])) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onApply = fn
}

// Batch implements LiveList.
func (m *MemoryList[S, I]) Batch(ctx context.Context, fn func(tx Tx[S, I]) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.table.Clone()
	if err := fn(work); err != nil {
		m.stats.Rejected++
		return err
	}
	if err := ctx.Err(); err != nil {
		m.stats.Rejected++
		return err
	}
	m.table = work
	m.stats.Batches++
	m.notify()
	return nil
}

// ReloadData implements LiveList.
func (m *MemoryList[S, I]) ReloadData(ctx context.Context, snap *snapshot.Snapshot[S, I]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table = diff.NewTable(snap)
	m.stats.Reloads++
	m.notify()
	return nil
}

// Current implements Observable.
func (m *MemoryList[S, I]) Current() *snapshot.Snapshot[S, I] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current()
}

// Reloads returns how many reload ops item has received.
func (m *MemoryList[S, I]) Reloads(item I) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Reloads(item)
}

// Stats returns a copy of the counters.
func (m *MemoryList[S, I]) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *MemoryList[S, I]) current() *snapshot.Snapshot[S, I] {
	s, err := m.table.Snapshot()
	if err != nil {
		// The table enforces the snapshot invariants, so this is unreachable.
		return nil
	}
	return s
}

func (m *MemoryList[S, I]) notify() {
	if m.onApply != nil {
		m.onApply(m.current())
	}
}
