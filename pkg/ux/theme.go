// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal styling shared by the listsync CLI and its
// list views.
package ux

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, inserted rows
	ColorTealPrimary = lipgloss.Color("#20B9B4") // titles
	ColorTealDeep    = lipgloss.Color("#16858E") // section headers
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text
	ColorFoam        = lipgloss.Color("#C9D6DA") // plain rows

	ColorWarning = lipgloss.Color("#F4D03F") // moved rows
	ColorError   = lipgloss.Color("#E74C3C") // deletes, failures
	ColorIce     = lipgloss.Color("#7FB8E6") // reloaded rows
)

// Styles maps list roles to lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Section lipgloss.Style
	Item    lipgloss.Style
	Muted   lipgloss.Style
	Empty   lipgloss.Style
	Error   lipgloss.Style

	// Change styles, one per kind of edit.
	Inserted lipgloss.Style
	Deleted  lipgloss.Style
	Moved    lipgloss.Style
	Reloaded lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary),
	Section: lipgloss.NewStyle().Bold(true).Foreground(ColorTealDeep),
	Item:    lipgloss.NewStyle().Foreground(ColorFoam),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Empty:   lipgloss.NewStyle().Foreground(ColorSlate).Italic(true),
	Error:   lipgloss.NewStyle().Foreground(ColorError),

	Inserted: lipgloss.NewStyle().Foreground(ColorTealBright),
	Deleted:  lipgloss.NewStyle().Foreground(ColorError),
	Moved:    lipgloss.NewStyle().Foreground(ColorWarning),
	Reloaded: lipgloss.NewStyle().Foreground(ColorIce),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
)

// Render returns the icon with its status color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Inserted.Render(string(i))
	case IconWarning:
		return Styles.Moved.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// machinePrefix is what an icon becomes when output is not a terminal.
func (i Icon) machinePrefix() string {
	switch i {
	case IconSuccess:
		return "OK:"
	case IconWarning:
		return "WARN:"
	case IconError:
		return "ERROR:"
	default:
		return "-"
	}
}

// Status writes one status line to w. Styled output uses the icon glyph;
// plain output uses a grep-friendly prefix such as "OK:".
func Status(w io.Writer, icon Icon, text string, styled bool) {
	if !styled {
		fmt.Fprintf(w, "%s %s\n", icon.machinePrefix(), text)
		return
	}
	fmt.Fprintf(w, "%s %s\n", icon.Render(), text)
}
