// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/listsync/services/listsync/apply"
	"github.com/AleutianAI/listsync/services/listsync/coalesce"
	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

// =============================================================================
// Helpers
// =============================================================================

func snap(t *testing.T, layout map[string][]string, order ...string) *Snapshot {
	t.Helper()
	b := snapshot.NewBuilder[string, string]()
	for _, sec := range order {
		b.AppendSections(sec).AppendItems(layout[sec], sec)
	}
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

type fakeSink struct {
	mu        sync.Mutex
	producers []coalesce.Producer[string, string]
}

func (f *fakeSink) Submit(p coalesce.Producer[string, string]) *coalesce.Ticket[string, string] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.producers = append(f.producers, p)
	return nil
}

func (f *fakeSink) last(t *testing.T) *Snapshot {
	t.Helper()
	f.mu.Lock()
	p := f.producers[len(f.producers)-1]
	f.mu.Unlock()
	s, err := p(context.Background())
	require.NoError(t, err)
	return s
}

func noLatency(string) time.Duration { return 0 }

func typeRunes(m tea.Model, s string) tea.Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

// =============================================================================
// ListView
// =============================================================================

func TestListView_MarksRows(t *testing.T) {
	view := NewListView()
	var msgs []ChangedMsg
	view.SetSender(func(msg tea.Msg) { msgs = append(msgs, msg.(ChangedMsg)) })
	app := apply.New[string, string](view, apply.Config{ComparePayloads: true}, nil)
	ctx := context.Background()

	first := snap(t, map[string][]string{"a": {"x", "y", "z"}}, "a")
	res, err := app.Apply(ctx, first, apply.ModeAnimated)
	require.NoError(t, err)
	assert.Equal(t, apply.ModeReload, res.Mode)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Reload)
	assert.Empty(t, msgs[0].Marks)

	second := snap(t, map[string][]string{"a": {"z", "x", "w"}, "b": {"v"}}, "a", "b")
	second, err = second.ReloadItems("x")
	require.NoError(t, err)
	_, err = app.Apply(ctx, second, apply.ModeAnimated)
	require.NoError(t, err)

	require.Len(t, msgs, 2)
	assert.False(t, msgs[1].Reload)
	assert.Equal(t, "a[z x w] b[v]", msgs[1].Snapshot.String())
	marks := view.Marks()
	assert.Equal(t, MarkMoved, marks["z"])
	assert.Equal(t, MarkInserted, marks["w"])
	assert.Equal(t, MarkInserted, marks["v"], "items of inserted sections are marked")
	assert.Equal(t, MarkReloaded, marks["x"])
	assert.Equal(t, MarkNone, marks["y"])
	assert.Equal(t, marks, msgs[1].Marks)
}

func TestListView_RejectedBatchKeepsMarks(t *testing.T) {
	view := NewListView()
	ctx := context.Background()
	require.NoError(t, view.ReloadData(ctx, snap(t, map[string][]string{"a": {"x"}}, "a")))

	err := view.Batch(ctx, func(tx apply.Tx[string, string]) error {
		if err := tx.InsertItem("a", 1, "y"); err != nil {
			return err
		}
		return errors.New("host rejected")
	})
	require.Error(t, err)
	assert.Empty(t, view.Marks())
	assert.Equal(t, "a[x]", view.Current().String())
	assert.Equal(t, 1, view.Stats().Rejected)
}

func TestMark_String(t *testing.T) {
	assert.Equal(t, "none", MarkNone.String())
	assert.Equal(t, "inserted", MarkInserted.String())
	assert.Equal(t, "moved", MarkMoved.String())
	assert.Equal(t, "reloaded", MarkReloaded.String())
	assert.Equal(t, "unknown", Mark(9).String())
}

// =============================================================================
// Search
// =============================================================================

func TestSearch(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"app", "fruit[apple pineapple] software[applet application appliance firmware]"},
		{"APPLE", "fruit[apple pineapple] software[applet]"},
		{"par", "vegetable[parsnip asparagus] software[parser]"},
		{"zzz", "<empty>"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			s, err := Search(DefaultCorpus, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.String())
		})
	}

	t.Run("empty query matches everything", func(t *testing.T) {
		s, err := Search(DefaultCorpus, "")
		require.NoError(t, err)
		assert.Equal(t, len(DefaultCorpus), s.ItemCount())
	})

	t.Run("duplicate names", func(t *testing.T) {
		_, err := Search([]Entry{{"a", "x"}, {"b", "x"}}, "")
		assert.ErrorIs(t, err, snapshot.ErrDuplicateItem)
	})
}

func TestDefaultLatency(t *testing.T) {
	assert.Greater(t, DefaultLatency("a"), DefaultLatency("app"))
	assert.Equal(t, 20*time.Millisecond, DefaultLatency("a very long query"))
}

func TestSearchProducer_Cancelled(t *testing.T) {
	p := SearchProducer(DefaultCorpus, "a", func(string) time.Duration { return time.Hour })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Model
// =============================================================================

func TestModel_SearchSubmitsPerKeystroke(t *testing.T) {
	sink := &fakeSink{}
	m := NewModel(Config{Search: true, Latency: noLatency}, sink)
	assert.Equal(t, 1, m.Submitted(), "empty query is submitted up front")

	var model tea.Model = m
	model = typeRunes(model, "app")
	assert.Equal(t, 4, model.(Model).Submitted())
	assert.Equal(t, "fruit[apple pineapple] software[applet application appliance firmware]", sink.last(t).String())

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	assert.Equal(t, 5, model.(Model).Submitted())
	assert.Equal(t, []string{"fruit", "software"}, sink.last(t).Sections())

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 5, model.(Model).Submitted(), "navigation keys do not submit")
}

func TestModel_ChangedMsgRenders(t *testing.T) {
	m := NewModel(Config{Title: "files"}, nil)
	var model tea.Model = m
	model, _ = model.Update(tea.WindowSizeMsg{Width: 80, Height: 20})

	s := snap(t, map[string][]string{"s": {"a", "b"}}, "s")
	model, _ = model.Update(ChangedMsg{Snapshot: s, Marks: map[string]Mark{"b": MarkInserted}})

	view := model.View()
	assert.Contains(t, view, "files")
	assert.Contains(t, view, "s (2)")
	assert.Contains(t, view, "+ b")
	assert.Same(t, s, model.(Model).Snapshot())

	model, _ = model.Update(ChangedMsg{Snapshot: s, Marks: map[string]Mark{}, Reload: true})
	assert.Contains(t, model.View(), "files (reloaded)")
}

func TestModel_EventMsgStatus(t *testing.T) {
	var model tea.Model = NewModel(Config{}, nil)

	model, _ = model.Update(EventMsg{Generation: 3, Outcome: coalesce.OutcomeApplied, Result: apply.Result[string, string]{Mode: apply.ModeAnimated}})
	assert.Contains(t, model.(Model).Status(), "#3 animated, 0 ops")

	model, _ = model.Update(EventMsg{Generation: 4, Outcome: coalesce.OutcomeFailed, Err: errors.New("backend down")})
	assert.Contains(t, model.(Model).Status(), "backend down")
}

func TestModel_Quit(t *testing.T) {
	tests := []struct {
		name   string
		search bool
		key    tea.KeyMsg
		quits  bool
	}{
		{"esc", true, tea.KeyMsg{Type: tea.KeyEsc}, true},
		{"ctrl+c", false, tea.KeyMsg{Type: tea.KeyCtrlC}, true},
		{"q in list mode", false, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}, true},
		{"q in search mode", true, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel(Config{Search: tt.search, Latency: noLatency}, &fakeSink{})
			model, cmd := m.Update(tt.key)
			if tt.quits {
				require.NotNil(t, cmd)
				assert.Equal(t, tea.Quit(), cmd())
				assert.Empty(t, model.View())
			} else {
				assert.NotEmpty(t, model.View())
			}
		})
	}
}

func TestRender_Empty(t *testing.T) {
	assert.Contains(t, Render(nil, nil), "no results")
}

// =============================================================================
// End to end
// =============================================================================

func TestSearch_ThroughCoalescer(t *testing.T) {
	view := NewListView()
	app := apply.New[string, string](view, apply.Config{}, nil)
	c, err := coalesce.New(app, coalesce.Config{StreamID: "search", Quiescence: 5 * time.Millisecond}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()
	t.Cleanup(func() {
		c.Close()
		cancel()
	})

	latency := func(q string) time.Duration {
		// Earlier, shorter queries finish last.
		return time.Duration(40-10*len(q)) * time.Millisecond
	}
	var model tea.Model = NewModel(Config{Search: true, Latency: latency}, c)
	model = typeRunes(model, "app")

	require.Eventually(t, func() bool {
		return view.Current().String() == "fruit[apple pineapple] software[applet application appliance firmware]"
	}, 5*time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "fruit[apple pineapple] software[applet application appliance firmware]", view.Current().String(),
		"slower results for earlier queries never overwrite the latest")
}
