// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/listsync/services/listsync/apply"
	"github.com/AleutianAI/listsync/services/listsync/coalesce"
)

// recordingSink counts submissions and runs each producer immediately.
type recordingSink struct {
	mu       sync.Mutex
	produced []string
	errs     []error
}

func (s *recordingSink) Submit(p coalesce.Producer[string, string]) *coalesce.Ticket[string, string] {
	snap, err := p(context.Background())
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errs = append(s.errs, err)
		s.produced = append(s.produced, "")
	} else {
		s.produced = append(s.produced, snap.String())
	}
	return nil
}

func (s *recordingSink) snapshot() ([]string, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.produced...), append([]error(nil), s.errs...)
}

func writeDoc(t *testing.T, path string, items string) {
	t.Helper()
	doc := "sections:\n  - key: s\n    items: [" + items + "]\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))
}

func startWatcher(t *testing.T, path string, sink Sink) *Watcher {
	t.Helper()
	w, err := New(path, nil, sink, &Options{Debounce: 50 * time.Millisecond}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() {
		w.Stop()
		cancel()
	})
	return w
}

func TestNew_NilSink(t *testing.T) {
	_, err := New("snap.yaml", nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoSink)
}

func TestWatcher_InitialSubmit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.yaml")
	writeDoc(t, path, "a, b")
	sink := &recordingSink{}

	w := startWatcher(t, path, sink)
	assert.True(t, w.IsWatching())

	produced, _ := sink.snapshot()
	assert.Equal(t, []string{"s[a b]"}, produced)
	assert.Len(t, w.Tickets(), 1)
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.yaml")
	writeDoc(t, path, "a")
	sink := &recordingSink{}
	startWatcher(t, path, sink)

	writeDoc(t, path, "a, b")
	writeDoc(t, path, "a, b, c")
	writeDoc(t, path, "c, b, a")

	require.Eventually(t, func() bool {
		produced, _ := sink.snapshot()
		return len(produced) == 2
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	produced, _ := sink.snapshot()
	assert.Equal(t, []string{"s[a]", "s[c b a]"}, produced)
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.yaml")
	writeDoc(t, path, "a")
	sink := &recordingSink{}
	startWatcher(t, path, sink)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0600))
	time.Sleep(200 * time.Millisecond)

	produced, _ := sink.snapshot()
	assert.Len(t, produced, 1)
}

func TestWatcher_RemovedFileReportsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.yaml")
	writeDoc(t, path, "a")
	sink := &recordingSink{}
	startWatcher(t, path, sink)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		_, errs := sink.snapshot()
		return len(errs) == 1
	}, 2*time.Second, 10*time.Millisecond)
	_, errs := sink.snapshot()
	assert.ErrorIs(t, errs[0], os.ErrNotExist)
}

func TestWatcher_Stop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.yaml")
	writeDoc(t, path, "a")
	sink := &recordingSink{}
	w := startWatcher(t, path, sink)

	w.Stop()
	w.Stop()
	assert.False(t, w.IsWatching())

	writeDoc(t, path, "b")
	time.Sleep(150 * time.Millisecond)
	produced, _ := sink.snapshot()
	assert.Len(t, produced, 1)
}

func TestWatcher_FeedsCoalescer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.yaml")
	writeDoc(t, path, "a, b")

	list := apply.NewMemoryList[string, string]()
	app := apply.New[string, string](list, apply.Config{}, nil)
	c, err := coalesce.New(app, coalesce.Config{StreamID: "file", Quiescence: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()
	t.Cleanup(func() {
		c.Close()
		cancel()
	})

	w := startWatcher(t, path, c)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	outcome, err := w.Tickets()[0].Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, coalesce.OutcomeApplied, outcome)
	assert.Equal(t, "s[a b]", list.Current().String())

	writeDoc(t, path, "b, a, c")
	require.Eventually(t, func() bool {
		return list.Current().String() == "s[b a c]"
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, list.Stats().Reloads, "only the first population reloads")
}
