// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapfile

import (
	"context"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

// Loader loads snapshot files with fixed options. Concurrent loads of the
// same path share one read.
//
// Thread Safety: Safe for concurrent use.
type Loader struct {
	opts   []snapshot.Option
	flight singleflight.Group
	read   func(path string, opts ...snapshot.Option) (*Snapshot, error)
}

// NewLoader creates a Loader that applies opts to every snapshot.
func NewLoader(opts ...snapshot.Option) *Loader {
	return &Loader{opts: opts, read: Load}
}

// Load reads path, joining an in-flight read of the same file if there is
// one. It returns ctx.Err() if ctx ends first; the shared read continues
// for the other callers.
func (l *Loader) Load(ctx context.Context, path string) (*Snapshot, error) {
	key := filepath.Clean(path)
	ch := l.flight.DoChan(key, func() (interface{}, error) {
		return l.read(key, l.opts...)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

// Refresh is Load without joining a read that is already in flight: that
// read may have started before the latest write to path. Later Load calls
// join the fresh read.
func (l *Loader) Refresh(ctx context.Context, path string) (*Snapshot, error) {
	l.flight.Forget(filepath.Clean(path))
	return l.Load(ctx, path)
}

// Producer returns a function that refreshes path, for use as a coalescer
// producer. Each producer reads the file as it is when the producer runs.
func (l *Loader) Producer(path string) func(ctx context.Context) (*Snapshot, error) {
	return func(ctx context.Context) (*Snapshot, error) {
		return l.Refresh(ctx, path)
	}
}
