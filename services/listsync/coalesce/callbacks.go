// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package coalesce

import (
	"slices"
	"sync"
)

type callbackEntry[T any] struct {
	id uint64
	fn T
}

// callbackList is a copy-on-write list of callbacks. get returns a slice
// that is never modified afterwards, so callers iterate without the lock.
type callbackList[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []callbackEntry[T]
}

func (l *callbackList[T]) add(fn T) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	next := slices.Clone(l.entries)
	l.entries = append(next, callbackEntry[T]{id: l.nextID, fn: fn})
	return l.nextID
}

func (l *callbackList[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = slices.DeleteFunc(slices.Clone(l.entries), func(e callbackEntry[T]) bool {
		return e.id == id
	})
}

func (l *callbackList[T]) get() []T {
	l.mu.Lock()
	entries := l.entries
	l.mu.Unlock()
	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = e.fn
	}
	return out
}
