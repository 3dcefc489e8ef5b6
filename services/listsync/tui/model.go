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
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/listsync/pkg/ux"
	"github.com/AleutianAI/listsync/services/listsync/coalesce"
)

// Submitter receives producers. *coalesce.Coalescer[string, string]
// implements it.
type Submitter interface {
	Submit(p coalesce.Producer[string, string]) *coalesce.Ticket[string, string]
}

// EventMsg carries a coalescer event into the program.
type EventMsg coalesce.Event[string, string]

// =============================================================================
// Config
// =============================================================================

// Config configures the Model.
type Config struct {
	// Title is shown above the list.
	Title string

	// Search shows a text input and submits one search per keystroke.
	Search bool

	// Corpus is searched when Search is true. Default: DefaultCorpus.
	Corpus []Entry

	// Latency simulates backend latency per query. Default: DefaultLatency.
	Latency func(query string) time.Duration
}

// =============================================================================
// Model
// =============================================================================

// Model is the bubbletea model for a synchronized list.
type Model struct {
	config Config
	sink   Submitter

	input    textinput.Model
	viewport viewport.Model
	ready    bool
	width    int
	height   int

	snap      *Snapshot
	marks     map[string]Mark
	reloaded  bool
	status    string
	submitted int
	quitting  bool
}

// NewModel creates a model.
//
// # Inputs
//
//   - config: Configuration options.
//   - sink: Receives search producers. May be nil when config.Search is
//     false.
//
// # Outputs
//
//   - Model: Ready-to-use model for tea.NewProgram. In search mode the
//     empty query has already been submitted. Post ChangedMsg and EventMsg
//     values to the program to update it.
func NewModel(config Config, sink Submitter) Model {
	if config.Corpus == nil {
		config.Corpus = DefaultCorpus
	}
	if config.Latency == nil {
		config.Latency = DefaultLatency
	}
	input := textinput.New()
	input.Placeholder = "type to search"
	input.Prompt = "/ "
	input.CharLimit = 64
	m := Model{
		config: config,
		sink:   sink,
		input:  input,
		marks:  map[string]Mark{},
		status: "waiting for data",
	}
	if config.Search {
		m.input.Focus()
		m.submit("")
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if !m.config.Search {
		return nil
	}
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		h := m.height - m.chromeHeight()
		if h < 1 {
			h = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, h)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = h
		}
		m.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "q":
			if !m.config.Search {
				m.quitting = true
				return m, tea.Quit
			}
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		if m.config.Search {
			before := m.input.Value()
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
			if m.input.Value() != before {
				m.submit(m.input.Value())
			}
		}

	case ChangedMsg:
		m.snap = msg.Snapshot
		m.marks = msg.Marks
		m.reloaded = msg.Reload
		m.refresh()

	case EventMsg:
		m.status = describeEvent(coalesce.Event[string, string](msg))

	default:
		if m.config.Search {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(ux.Styles.Title.Render(m.title()))
	b.WriteString("\n")
	if m.config.Search {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	if m.ready {
		b.WriteString(m.viewport.View())
	} else {
		b.WriteString(Render(m.snap, m.marks))
	}
	b.WriteString("\n")
	b.WriteString(ux.Styles.Muted.Render(m.status))
	return b.String()
}

// Submitted returns how many producers the model has submitted.
func (m Model) Submitted() int {
	return m.submitted
}

// Snapshot returns the most recently displayed snapshot.
func (m Model) Snapshot() *Snapshot {
	return m.snap
}

// Status returns the status line.
func (m Model) Status() string {
	return m.status
}

func (m *Model) submit(query string) {
	if m.sink == nil {
		return
	}
	m.sink.Submit(SearchProducer(m.config.Corpus, query, m.config.Latency))
	m.submitted++
}

func (m *Model) refresh() {
	if m.ready {
		m.viewport.SetContent(Render(m.snap, m.marks))
	}
}

func (m Model) title() string {
	title := m.config.Title
	if title == "" {
		title = "listsync"
	}
	if m.reloaded {
		title += " (reloaded)"
	}
	return title
}

func (m Model) chromeHeight() int {
	if m.config.Search {
		return 3
	}
	return 2
}

func describeEvent(ev coalesce.Event[string, string]) string {
	switch ev.Outcome {
	case coalesce.OutcomeApplied:
		res := ev.Result
		s := fmt.Sprintf("#%d %s, %d ops in %s", ev.Generation, res.Mode, res.Script.Len(), res.Duration.Round(time.Microsecond))
		if res.FellBack {
			s += " (fell back to reload)"
		}
		return s
	case coalesce.OutcomeFailed:
		return ux.Styles.Error.Render(fmt.Sprintf("#%d failed: %v", ev.Generation, ev.Err))
	default:
		return fmt.Sprintf("#%d %s", ev.Generation, ev.Outcome)
	}
}

// =============================================================================
// Rendering
// =============================================================================

// Render draws snap with one section header per section and one row per
// item. Rows touched by the last batch carry a mark symbol.
func Render(snap *Snapshot, marks map[string]Mark) string {
	if snap.SectionCount() == 0 {
		return ux.Styles.Empty.Render("no results")
	}
	var b strings.Builder
	for i, sec := range snap.Sections() {
		if i > 0 {
			b.WriteString("\n")
		}
		items := snap.Items(sec)
		b.WriteString(ux.Styles.Section.Render(fmt.Sprintf("%s (%d)", sec, len(items))))
		for _, it := range items {
			b.WriteString("\n")
			mark := marks[it]
			b.WriteString(markStyle(mark).Render(markSymbol(mark) + " " + it))
		}
	}
	return b.String()
}

func markSymbol(m Mark) string {
	switch m {
	case MarkInserted:
		return "+"
	case MarkMoved:
		return "~"
	case MarkReloaded:
		return "*"
	default:
		return " "
	}
}

func markStyle(m Mark) lipgloss.Style {
	switch m {
	case MarkInserted:
		return ux.Styles.Inserted
	case MarkMoved:
		return ux.Styles.Moved
	case MarkReloaded:
		return ux.Styles.Reloaded
	default:
		return ux.Styles.Item
	}
}
