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
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/listsync/services/listsync/diff"
	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

// =============================================================================
// Test doubles
// =============================================================================

// flakyList wraps a MemoryList and can be told to fail.
type flakyList struct {
	*MemoryList[string, string]
	failBatch  error
	failReload error
	dropOps    bool
}

func (f *flakyList) Batch(ctx context.Context, fn func(tx Tx[string, string]) error) error {
	if f.failBatch != nil {
		return f.failBatch
	}
	if f.dropOps {
		return f.MemoryList.Batch(ctx, func(Tx[string, string]) error { return nil })
	}
	return f.MemoryList.Batch(ctx, fn)
}

func (f *flakyList) ReloadData(ctx context.Context, snap *snapshot.Snapshot[string, string]) error {
	if f.failReload != nil {
		return f.failReload
	}
	return f.MemoryList.ReloadData(ctx, snap)
}

func fruits(t *testing.T, items ...string) *snapshot.Snapshot[string, string] {
	t.Helper()
	s, err := snapshot.NewBuilder[string, string]().AppendSections("fruits").AppendItems(items).Build()
	require.NoError(t, err)
	return s
}

// =============================================================================
// Applicator
// =============================================================================

func TestApply_FirstPopulationReloads(t *testing.T) {
	list := NewMemoryList[string, string]()
	app := New[string, string](list, Config{}, nil)

	res, err := app.Apply(context.Background(), fruits(t, "apple", "banana"), ModeAnimated)
	require.NoError(t, err)
	assert.Equal(t, ModeReload, res.Mode)
	assert.Nil(t, res.Script)
	assert.False(t, res.FellBack)
	assert.Equal(t, MemoryStats{Reloads: 1}, list.Stats())
	assert.Equal(t, "fruits[apple banana]", list.Current().String())
}

func TestApply_AnimatedRoundTrip(t *testing.T) {
	list := NewMemoryList[string, string]()
	app := New[string, string](list, Config{}, nil)
	ctx := context.Background()

	_, err := app.Apply(ctx, fruits(t, "apple", "banana"), ModeAnimated)
	require.NoError(t, err)

	next := fruits(t, "banana", "cherry")
	res, err := app.Apply(ctx, next, ModeAnimated)
	require.NoError(t, err)
	assert.Equal(t, ModeAnimated, res.Mode)
	assert.False(t, res.FellBack)
	require.NotNil(t, res.Script)
	assert.Equal(t, 2, res.Script.Len())
	assert.True(t, list.Current().Equal(next))
	assert.Same(t, next, app.Baseline())
	assert.Equal(t, 1, list.Stats().Batches)
}

func TestApply_ExplicitReloadMode(t *testing.T) {
	list := NewMemoryList[string, string]()
	app := New[string, string](list, Config{}, nil)
	ctx := context.Background()

	_, err := app.Apply(ctx, fruits(t, "apple"), ModeAnimated)
	require.NoError(t, err)
	res, err := app.Apply(ctx, fruits(t, "kiwi"), ModeReload)
	require.NoError(t, err)
	assert.Equal(t, ModeReload, res.Mode)
	assert.Zero(t, list.Stats().Batches)
	assert.Equal(t, 2, list.Stats().Reloads)
}

func TestApply_FallsBackOnRejectedBatch(t *testing.T) {
	list := &flakyList{MemoryList: NewMemoryList[string, string]()}
	app := New[string, string](list, Config{}, nil)
	ctx := context.Background()

	_, err := app.Apply(ctx, fruits(t, "apple"), ModeAnimated)
	require.NoError(t, err)

	hostErr := errors.New("index collision")
	list.failBatch = hostErr
	next := fruits(t, "apple", "banana")
	res, err := app.Apply(ctx, next, ModeAnimated)
	require.NoError(t, err)
	assert.True(t, res.FellBack)
	assert.Equal(t, ModeReload, res.Mode)
	assert.ErrorIs(t, res.Err, ErrBatchRejected)
	assert.ErrorIs(t, res.Err, hostErr)
	assert.True(t, list.Current().Equal(next))
	assert.Same(t, next, app.Baseline())
}

func TestApply_FallsBackOnStaleBaseline(t *testing.T) {
	list := NewMemoryList[string, string]()
	app := New[string, string](list, Config{}, nil)
	ctx := context.Background()

	_, err := app.Apply(ctx, fruits(t, "apple", "banana"), ModeAnimated)
	require.NoError(t, err)

	// Someone else rewrites the list behind the applicator's back.
	require.NoError(t, list.ReloadData(ctx, fruits(t, "banana", "apple")))

	next := fruits(t, "banana", "cherry")
	res, err := app.Apply(ctx, next, ModeAnimated)
	require.NoError(t, err)
	assert.True(t, res.FellBack)
	assert.ErrorIs(t, res.Err, diff.ErrKeyMismatch)
	assert.True(t, list.Current().Equal(next))
	assert.Equal(t, 1, list.Stats().Rejected)
}

func TestApply_FallsBackOnDivergence(t *testing.T) {
	list := &flakyList{MemoryList: NewMemoryList[string, string](), dropOps: true}
	app := New[string, string](list, Config{}, nil)
	ctx := context.Background()

	_, err := app.Apply(ctx, fruits(t, "apple"), ModeAnimated)
	require.NoError(t, err)

	next := fruits(t, "apple", "banana")
	res, err := app.Apply(ctx, next, ModeAnimated)
	require.NoError(t, err)
	assert.True(t, res.FellBack)
	assert.ErrorIs(t, res.Err, ErrDiverged)
	assert.True(t, list.Current().Equal(next))
}

func TestApply_ReloadFailureKeepsBaseline(t *testing.T) {
	list := &flakyList{MemoryList: NewMemoryList[string, string]()}
	app := New[string, string](list, Config{}, nil)
	ctx := context.Background()

	first := fruits(t, "apple")
	_, err := app.Apply(ctx, first, ModeAnimated)
	require.NoError(t, err)

	list.failBatch = errors.New("rejected")
	list.failReload = errors.New("view gone")
	_, err = app.Apply(ctx, fruits(t, "kiwi"), ModeAnimated)
	require.ErrorIs(t, err, ErrApplyFailed)
	assert.Same(t, first, app.Baseline())
	assert.Equal(t, "fruits[apple]", list.Current().String(), "list must still show the old baseline")
}

func TestApply_CancelledContext(t *testing.T) {
	list := NewMemoryList[string, string]()
	app := New[string, string](list, Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := app.Apply(ctx, fruits(t, "apple"), ModeAnimated)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, app.Baseline().ItemCount())
	assert.Zero(t, list.Stats().Reloads)
}

func TestApply_ComparePayloadsReloadsChangedRows(t *testing.T) {
	list := NewMemoryList[string, string]()
	app := New[string, string](list, Config{ComparePayloads: true}, nil)
	ctx := context.Background()

	old, err := fruits(t, "apple", "banana").WithPayload("apple", "green")
	require.NoError(t, err)
	_, err = app.Apply(ctx, old, ModeAnimated)
	require.NoError(t, err)

	next, err := fruits(t, "apple", "banana").WithPayload("apple", "red")
	require.NoError(t, err)
	res, err := app.Apply(ctx, next, ModeAnimated)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Script.Counts().Reloads)
	assert.Equal(t, 1, list.Reloads("apple"))
	assert.Zero(t, list.Reloads("banana"))
}

func TestApply_NeverDuplicatesAcrossRandomSequence(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	list := NewMemoryList[string, int]()
	app := New[string, int](list, Config{}, nil)
	ctx := context.Background()

	seen := 0
	list.OnApply(func(s *snapshot.Snapshot[string, int]) {
		seen++
		require.NotNil(t, s)
		require.NoError(t, s.Validate())
	})

	for i := 0; i < 200; i++ {
		next := randomSnapshot(t, r)
		res, err := app.Apply(ctx, next, ModeAnimated)
		require.NoError(t, err)
		assert.False(t, res.FellBack, "step %d: %v", i, res.Err)
		assert.True(t, list.Current().Equal(next), "step %d", i)
	}
	assert.Positive(t, seen)
}

func randomSnapshot(t *testing.T, r *rand.Rand) *snapshot.Snapshot[string, int] {
	t.Helper()
	secs := r.Perm(4)[:r.Intn(5)]
	b := snapshot.NewBuilder[string, int]()
	for _, s := range secs {
		b.AppendSections(fmt.Sprintf("s%d", s))
	}
	if len(secs) > 0 {
		for _, it := range r.Perm(20)[:r.Intn(21)] {
			b.AppendItems([]int{it}, fmt.Sprintf("s%d", secs[r.Intn(len(secs))]))
		}
	}
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

// =============================================================================
// ApplyScript and modes
// =============================================================================

func TestApplyScript_EmptyScriptOpensNoBatch(t *testing.T) {
	list := NewMemoryList[string, string]()
	s := fruits(t, "apple")
	require.NoError(t, list.ReloadData(context.Background(), s))

	es, err := diff.Compute(s, s, diff.Options[string]{})
	require.NoError(t, err)
	require.NoError(t, ApplyScript(context.Background(), es, list))
	assert.Zero(t, list.Stats().Batches)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeAnimated, false},
		{"animated", ModeAnimated, false},
		{"Reload", ModeReload, false},
		{"fade", ModeAnimated, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "unknown", Mode(9).String())
}
