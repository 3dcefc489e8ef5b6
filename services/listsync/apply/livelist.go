// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apply pushes edit scripts into a live, mutable list.
//
// # Overview
//
// A LiveList is whatever actually displays the rows: a terminal view, a test
// double, a remote renderer. It offers batched structural mutation through
// Tx and a full ReloadData. The Applicator owns the last-applied baseline,
// diffs every new snapshot against it and applies the result as one batch.
// If the host rejects any op of the batch the Applicator reloads the list
// from the new snapshot instead, so the list is never left half-updated.
//
// # Thread Safety
//
// The Applicator serializes its own calls. LiveList implementations only see
// one Batch or ReloadData at a time from a given Applicator.
package apply

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/listsync/services/listsync/diff"
	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrBatchRejected is returned when the host refuses an op of a batch.
	ErrBatchRejected = errors.New("live list rejected batch")

	// ErrDiverged is returned when a list reports a state other than the
	// snapshot the script should have produced.
	ErrDiverged = errors.New("live list diverged from target snapshot")

	// ErrApplyFailed is returned when even the full reload failed. The
	// baseline is left unchanged.
	ErrApplyFailed = errors.New("apply failed")
)

// =============================================================================
// Capabilities
// =============================================================================

// Tx is the set of structural edits available inside one batch.
//
// An implementation must return an error for any op that does not fit its
// current state (index out of range, wrong key at the position, duplicate
// key). Returning an error aborts the batch.
type Tx[S, I snapshot.Key] interface {
	diff.Target[S, I]
}

// LiveList is a displayed list that supports batched structural edits.
//
// Batch must be atomic: when fn returns an error, or the host rejects the
// batch, none of the edits made inside it may remain visible.
type LiveList[S, I snapshot.Key] interface {
	// Batch runs fn with a transaction and commits its edits as one update.
	Batch(ctx context.Context, fn func(tx Tx[S, I]) error) error

	// ReloadData discards the current contents and shows snap without
	// animation.
	ReloadData(ctx context.Context, snap *snapshot.Snapshot[S, I]) error
}

// Observable is implemented by lists that can report their structure.
//
// When a LiveList is Observable, ApplyScript verifies the list after the
// batch and reports ErrDiverged on a mismatch.
type Observable[S, I snapshot.Key] interface {
	Current() *snapshot.Snapshot[S, I]
}

// ApplyScript executes script against list in a single batch.
//
// Description:
//
//	An empty script is a no-op and does not open a batch. Any rejected op
//	aborts the batch and is returned wrapped in ErrBatchRejected. Observable
//	lists are compared with the script's target afterwards.
//
// Inputs:
//   - ctx: Checked before the batch is opened and again inside it.
//   - script: The script to execute. Not modified.
//   - list: The live list.
//
// Outputs:
//   - error: ErrBatchRejected, ErrDiverged or a context error.
func ApplyScript[S, I snapshot.Key](ctx context.Context, script *diff.EditScript[S, I], list LiveList[S, I]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if script.IsEmpty() {
		return nil
	}
	ops := script.Ops()
	err := list.Batch(ctx, func(tx Tx[S, I]) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return diff.Execute(ops, tx)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBatchRejected, err)
	}
	if obs, ok := list.(Observable[S, I]); ok {
		if cur := obs.Current(); !cur.Equal(script.To()) {
			return fmt.Errorf("%w: have %s, want %s", ErrDiverged, cur, script.To())
		}
	}
	return nil
}
