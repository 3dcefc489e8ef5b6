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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_RejectsStaleOps(t *testing.T) {
	base := build(t, "a", []string{"1", "2"}, "b", []string{"3"})

	tests := []struct {
		name string
		op   Op[string, string]
		want error
	}{
		{"delete wrong key", Op[string, string]{Kind: OpDeleteItem, Section: "a", Item: "2", Index: 0}, ErrKeyMismatch},
		{"delete past end", Op[string, string]{Kind: OpDeleteItem, Section: "a", Item: "1", Index: 5}, ErrOutOfRange},
		{"insert duplicate", Op[string, string]{Kind: OpInsertItem, Section: "a", Item: "3", Index: 0}, ErrDuplicateKey},
		{"insert unknown section", Op[string, string]{Kind: OpInsertItem, Section: "z", Item: "9", Index: 0}, ErrUnknownSection},
		{"insert section duplicate item", Op[string, string]{Kind: OpInsertSection, Section: "c", Index: 0, Items: []string{"1"}}, ErrDuplicateKey},
		{"insert section duplicate key", Op[string, string]{Kind: OpInsertSection, Section: "a", Index: 0}, ErrDuplicateKey},
		{"move section wrong key", Op[string, string]{Kind: OpMoveSection, Section: "a", Index: 1, To: 0}, ErrKeyMismatch},
		{"move item past end", Op[string, string]{Kind: OpMoveItem, Section: "a", Item: "1", Index: 0, To: 2}, ErrOutOfRange},
		{"reload wrong key", Op[string, string]{Kind: OpReloadItem, Section: "b", Item: "1", Index: 0}, ErrKeyMismatch},
		{"unknown kind", Op[string, string]{Kind: OpKind(99)}, ErrUnknownOp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := NewTable(base)
			before := tbl.Clone()
			err := Execute([]Op[string, string]{tt.op}, tbl)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, before.Sections(), tbl.Sections())
			assert.Equal(t, before.Items("a"), tbl.Items("a"))
		})
	}
}

func TestTable_MovesAndReloads(t *testing.T) {
	tbl := NewTable(build(t, "a", []string{"1", "2", "3"}, "b", []string{}))

	require.NoError(t, tbl.MoveItem("a", 0, 2, "1"))
	assert.Equal(t, []string{"2", "3", "1"}, tbl.Items("a"))

	require.NoError(t, tbl.MoveSection(0, 1, "a"))
	assert.Equal(t, []string{"b", "a"}, tbl.Sections())

	require.NoError(t, tbl.ReloadItem("a", 2, "1"))
	require.NoError(t, tbl.ReloadItem("a", 2, "1"))
	assert.Equal(t, 2, tbl.Reloads("1"))

	require.NoError(t, tbl.DeleteSection(1, "a"))
	assert.Zero(t, tbl.ItemCount())

	s, err := tbl.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "b[]", s.String())
}

func TestReplay_StopsAtFirstBadOp(t *testing.T) {
	old := build(t, "a", []string{"1"})
	_, err := Replay([]Op[string, string]{
		{Kind: OpInsertItem, Section: "a", Item: "2", Index: 1},
		{Kind: OpInsertItem, Section: "a", Item: "2", Index: 0},
	}, old)
	require.ErrorIs(t, err, ErrDuplicateKey)
	assert.Contains(t, err.Error(), "op 1")
}

func TestUnified(t *testing.T) {
	old := build(t, "Fruits", []string{"Apple", "Banana"})
	next := build(t, "Fruits", []string{"Banana", "Cherry"})

	out, err := Unified(old, next, -1)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "--- old\n+++ new\n"), out)
	assert.Contains(t, out, "-  Apple\n")
	assert.Contains(t, out, "+  Cherry\n")
	assert.Contains(t, out, "   Banana\n")

	t.Run("zero context", func(t *testing.T) {
		out, err := Unified(old, next, 0)
		require.NoError(t, err)
		assert.Contains(t, out, "-  Apple\n")
		assert.Contains(t, out, "+  Cherry\n")
		assert.NotContains(t, out, "   Banana\n")
		assert.NotContains(t, out, " Fruits:\n")
	})

	same, err := Unified(old, old, 0)
	require.NoError(t, err)
	assert.Empty(t, same)
}

func TestRender(t *testing.T) {
	s := build(t, "a", []string{"1"}, "b", []string{})
	assert.Equal(t, "a:\n  1\nb:\n", Render(s))
	assert.Empty(t, Render[string, string](nil))
}
