// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/listsync/services/listsync/apply"
	"github.com/AleutianAI/listsync/services/listsync/coalesce"
	"github.com/AleutianAI/listsync/services/listsync/config"
	"github.com/AleutianAI/listsync/services/listsync/diff"
	"github.com/AleutianAI/listsync/services/listsync/tui"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

const (
	oldDoc = `sections:
  - key: s
    items:
      - id: a
        payload: 1
      - b
`
	newDoc = `sections:
  - key: s
    items:
      - id: a
        payload: 2
      - b
      - c
`
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name   string
		counts diff.Counts
		want   string
	}{
		{"empty", diff.Counts{}, "no changes"},
		{"single", diff.Counts{ItemInserts: 1}, "1 ops: 1 item insert"},
		{"plural", diff.Counts{ItemDeletes: 1, ItemMoves: 2}, "3 ops: 1 item delete, 2 item moves"},
		{"ordered", diff.Counts{Reloads: 1, SectionInserts: 2}, "3 ops: 2 section inserts, 1 reload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, summarize(tt.counts))
		})
	}
}

func TestDiffCommand(t *testing.T) {
	dir := t.TempDir()
	oldPath := writeFile(t, dir, "old.yaml", oldDoc)
	newPath := writeFile(t, dir, "new.yaml", newDoc)

	t.Run("script", func(t *testing.T) {
		out, _, err := execute(t, "diff", "--color", "never", oldPath, newPath)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, lines, "insertItem s:c@2")
		assert.Contains(t, lines, "reloadItem s:a@0")
		assert.Equal(t, "2 ops: 1 item insert, 1 reload", lines[2])
	})

	t.Run("unified", func(t *testing.T) {
		out, _, err := execute(t, "diff", "-u", "--color", "never", oldPath, newPath)
		require.NoError(t, err)
		assert.Contains(t, out, "--- old")
		assert.Contains(t, out, "+  c")
	})

	t.Run("identical", func(t *testing.T) {
		out, _, err := execute(t, "diff", "-u", "--color", "never", oldPath, oldPath)
		require.NoError(t, err)
		assert.Equal(t, "no changes\n", out)
	})

	t.Run("payload comparison off", func(t *testing.T) {
		cfgPath := writeFile(t, dir, "listsync.yaml", "apply:\n  compare_payloads: false\n")
		out, _, err := execute(t, "--config", cfgPath, "diff", "--color", "never", oldPath, newPath)
		require.NoError(t, err)
		assert.NotContains(t, out, "reloadItem")
	})

	t.Run("bad move policy", func(t *testing.T) {
		_, _, err := execute(t, "diff", "--moves", "teleport", oldPath, newPath)
		assert.Error(t, err)
	})

	t.Run("bad color", func(t *testing.T) {
		out, _, err := execute(t, "diff", "--color", "sometimes", oldPath, newPath)
		assert.ErrorIs(t, err, errColor)
		assert.Empty(t, out)
	})

	t.Run("zero context", func(t *testing.T) {
		out, _, err := execute(t, "diff", "-u", "-C", "0", "--color", "never", oldPath, newPath)
		require.NoError(t, err)
		assert.Contains(t, out, "+  c\n")
		assert.NotContains(t, out, "   b\n")
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := execute(t, "diff", oldPath, filepath.Join(dir, "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestRootFlags(t *testing.T) {
	dir := t.TempDir()
	oldPath := writeFile(t, dir, "old.yaml", oldDoc)

	t.Run("debug logging goes to stderr", func(t *testing.T) {
		_, errOut, err := execute(t, "--log-level", "debug", "diff", "--color", "never", oldPath, oldPath)
		require.NoError(t, err)
		assert.Contains(t, errOut, "computed edit script")
	})

	t.Run("trace exporter shuts down cleanly", func(t *testing.T) {
		out, _, err := execute(t, "--trace", "diff", "--color", "never", oldPath, oldPath)
		require.NoError(t, err)
		assert.Equal(t, "no changes\n", out)
	})

	t.Run("invalid level", func(t *testing.T) {
		_, _, err := execute(t, "--log-level", "loud", "diff", oldPath, oldPath)
		assert.ErrorIs(t, err, config.ErrInvalid)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfgPath := writeFile(t, dir, "bad.yaml", "coalescer:\n  mode: sideways\n")
		_, _, err := execute(t, "--config", cfgPath, "diff", oldPath, oldPath)
		assert.ErrorIs(t, err, config.ErrInvalid)
	})
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "listsync.yaml")

	out, _, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	_, _, err = execute(t, "config", "init", path)
	assert.Error(t, err)
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestWatchPlain(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "list.yaml", "sections:\n  - key: s\n    items: [a, b]\n")

	cfg := config.Default()
	cfg.Coalescer.Quiescence = 20 * time.Millisecond
	e := &env{cfg: cfg}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- e.runWatch(ctx, &out, path, watchFlags{debounce: 20 * time.Millisecond}, false)
	}()

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "reload") && strings.Contains(out.String(), "s[a b]")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "watching "+path+" (stream watch-")

	writeFile(t, dir, "list.yaml", "sections:\n  - key: s\n    items: [b, a, c]\n")
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "animated") && strings.Contains(out.String(), "s[b a c]")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runWatch did not return after cancel")
	}
	assert.Contains(t, out.String(), "stopped: ")
	assert.Contains(t, out.String(), " applied")
}

func TestTicketSummary(t *testing.T) {
	assert.Equal(t, "stopped: no updates", ticketSummary(nil))

	list := apply.NewMemoryList[string, string]()
	c, err := coalesce.New(apply.New[string, string](list, apply.Config{}, nil), coalesce.Config{Quiescence: 5 * time.Millisecond}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	snap, err := tui.Search(tui.DefaultCorpus, "apple")
	require.NoError(t, err)
	first := c.SubmitSnapshot(snap)
	applied, err := first.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, coalesce.OutcomeApplied, applied)

	second := c.Submit(func(ctx context.Context) (*tui.Snapshot, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.Equal(t, "stopped: 1 pending, 1 applied", ticketSummary([]*coalesce.Ticket[string, string]{first, second}))

	cancel()
	require.ErrorIs(t, <-runErr, context.Canceled)
	dropped, _ := second.Wait(context.Background())
	require.Equal(t, coalesce.OutcomeDropped, dropped)
	assert.Equal(t, "stopped: 1 applied, 1 dropped", ticketSummary([]*coalesce.Ticket[string, string]{first, second}))
}

func TestSearchLines(t *testing.T) {
	e := &env{cfg: config.Default()}
	e.cfg.Coalescer.Quiescence = 10 * time.Millisecond

	var out bytes.Buffer
	in := strings.NewReader("a\nap\napp\n")
	fast := scaledLatency(0.01)
	err := e.runSearchLines(context.Background(), in, &out, tui.DefaultCorpus, fast)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "applet")
	assert.NotContains(t, out.String(), "banana")
}
