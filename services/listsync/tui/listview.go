// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui hosts a synchronized list in a terminal.
//
// # Description
//
// ListView is the live list the applicator drives. It keeps the committed
// contents, remembers which rows the last batch touched and posts a
// ChangedMsg to the bubbletea program after every commit. Model renders it,
// optionally with a search box that submits one producer per keystroke.
//
// # Thread Safety
//
// ListView is safe for concurrent use: the coalescer writes to it from its
// loop goroutine while the program renders. Model is used only inside the
// bubbletea event loop.
package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AleutianAI/listsync/services/listsync/apply"
	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

// Snapshot is the snapshot type the terminal host displays.
type Snapshot = snapshot.Snapshot[string, string]

// =============================================================================
// Marks
// =============================================================================

// Mark describes what the last batch did to a row.
type Mark int

const (
	// MarkNone is an untouched row.
	MarkNone Mark = iota

	// MarkInserted is a row inserted by the last batch, on its own or with
	// its section.
	MarkInserted

	// MarkMoved is a row the last batch moved.
	MarkMoved

	// MarkReloaded is a row whose content the last batch reloaded.
	MarkReloaded
)

// String returns the string representation of the mark.
func (m Mark) String() string {
	switch m {
	case MarkNone:
		return "none"
	case MarkInserted:
		return "inserted"
	case MarkMoved:
		return "moved"
	case MarkReloaded:
		return "reloaded"
	default:
		return "unknown"
	}
}

// =============================================================================
// Messages
// =============================================================================

// ChangedMsg is posted after every committed batch or reload.
type ChangedMsg struct {
	Snapshot *Snapshot

	// Marks holds the rows touched by the batch. Empty after a reload.
	Marks map[string]Mark

	// Reload is true when the contents were replaced without animation.
	Reload bool
}

// =============================================================================
// ListView
// =============================================================================

// ListView is an apply.LiveList that records row marks for rendering.
type ListView struct {
	list *apply.MemoryList[string, string]

	mu    sync.Mutex
	marks map[string]Mark
	send  func(tea.Msg)
}

// NewListView creates an empty ListView.
func NewListView() *ListView {
	return &ListView{
		list:  apply.NewMemoryList[string, string](),
		marks: map[string]Mark{},
	}
}

// SetSender sets where ChangedMsg values go, typically (*tea.Program).Send.
// A nil sender drops them.
func (v *ListView) SetSender(send func(tea.Msg)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.send = send
}

// Batch implements apply.LiveList.
func (v *ListView) Batch(ctx context.Context, fn func(tx apply.Tx[string, string]) error) error {
	marks := map[string]Mark{}
	err := v.list.Batch(ctx, func(tx apply.Tx[string, string]) error {
		return fn(&markingTx{Tx: tx, marks: marks})
	})
	if err != nil {
		return err
	}
	v.commit(ChangedMsg{Snapshot: v.list.Current(), Marks: marks})
	return nil
}

// ReloadData implements apply.LiveList.
func (v *ListView) ReloadData(ctx context.Context, snap *Snapshot) error {
	if err := v.list.ReloadData(ctx, snap); err != nil {
		return err
	}
	v.commit(ChangedMsg{Snapshot: v.list.Current(), Marks: map[string]Mark{}, Reload: true})
	return nil
}

// Current implements apply.Observable.
func (v *ListView) Current() *Snapshot {
	return v.list.Current()
}

// Marks returns a copy of the last batch's row marks.
func (v *ListView) Marks() map[string]Mark {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]Mark, len(v.marks))
	for k, m := range v.marks {
		out[k] = m
	}
	return out
}

// Stats returns the underlying list's counters.
func (v *ListView) Stats() apply.MemoryStats {
	return v.list.Stats()
}

func (v *ListView) commit(msg ChangedMsg) {
	v.mu.Lock()
	v.marks = msg.Marks
	send := v.send
	v.mu.Unlock()
	if send != nil {
		out := msg
		out.Marks = v.Marks()
		send(out)
	}
}

var (
	_ apply.LiveList[string, string]   = (*ListView)(nil)
	_ apply.Observable[string, string] = (*ListView)(nil)
)

// markingTx records the rows each op touches. A later op on the same row
// wins, so an item moved and then reloaded shows as reloaded.
type markingTx struct {
	apply.Tx[string, string]
	marks map[string]Mark
}

func (t *markingTx) InsertSection(index int, section string, items []string) error {
	if err := t.Tx.InsertSection(index, section, items); err != nil {
		return err
	}
	for _, it := range items {
		t.marks[it] = MarkInserted
	}
	return nil
}

func (t *markingTx) InsertItem(section string, index int, item string) error {
	if err := t.Tx.InsertItem(section, index, item); err != nil {
		return err
	}
	t.marks[item] = MarkInserted
	return nil
}

func (t *markingTx) MoveItem(section string, from, to int, item string) error {
	if err := t.Tx.MoveItem(section, from, to, item); err != nil {
		return err
	}
	if t.marks[item] != MarkInserted {
		t.marks[item] = MarkMoved
	}
	return nil
}

func (t *markingTx) ReloadItem(section string, index int, item string) error {
	if err := t.Tx.ReloadItem(section, index, item); err != nil {
		return err
	}
	t.marks[item] = MarkReloaded
	return nil
}
