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
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/listsync/pkg/ux"
	"github.com/AleutianAI/listsync/services/listsync/diff"
	"github.com/AleutianAI/listsync/services/listsync/snapfile"
)

type diffFlags struct {
	unified bool
	context int
	moves   string
	color   string
}

func newDiffCmd(e *env) *cobra.Command {
	var flags diffFlags
	cmd := &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Print the edit script that turns one snapshot file into another",
		Long: `Reads two YAML snapshot documents and prints the ordered edit script
between them, one operation per line. Indices in each operation refer to the
list as it stands after the operations above it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runDiff(cmd.OutOrStdout(), args[0], args[1], flags)
		},
	}
	cmd.Flags().BoolVarP(&flags.unified, "unified", "u", false, "also print a unified text diff of both lists")
	cmd.Flags().IntVarP(&flags.context, "context", "C", diff.DefaultContext, "context lines for --unified")
	cmd.Flags().StringVar(&flags.moves, "moves", "", "move policy: moves or delete-insert (overrides config)")
	cmd.Flags().StringVar(&flags.color, "color", "auto", "color output: auto, always or never")
	return cmd
}

// errColor is returned for a --color value other than auto, always or never.
var errColor = errors.New("invalid --color value")

func useColor(mode string, out io.Writer) (bool, error) {
	switch mode {
	case "auto", "":
		return isTerminal(out), nil
	case "always":
		return true, nil
	case "never":
		return false, nil
	default:
		return false, fmt.Errorf("%w %q: want auto, always or never", errColor, mode)
	}
}

func (e *env) runDiff(out io.Writer, oldPath, newPath string, flags diffFlags) error {
	styled, err := useColor(flags.color, out)
	if err != nil {
		return err
	}
	opts, err := e.cfg.SnapshotOptions()
	if err != nil {
		return err
	}
	oldSnap, err := snapfile.Load(oldPath, opts...)
	if err != nil {
		return err
	}
	newSnap, err := snapfile.Load(newPath, opts...)
	if err != nil {
		return err
	}

	moves, err := e.cfg.DiffOptions()
	if err != nil {
		return err
	}
	if flags.moves != "" {
		if moves, err = diff.ParseMovePolicy(flags.moves); err != nil {
			return err
		}
	}
	dopts := diff.Options[string]{Moves: moves}
	if e.cfg.Apply.ComparePayloads {
		dopts.Reload = diff.ReloadFromPayloads(oldSnap, newSnap)
	}

	script, err := diff.Compute(oldSnap, newSnap, dopts)
	if err != nil {
		return err
	}
	e.slog().Debug("computed edit script",
		"old", oldPath, "new", newPath, "ops", script.Len(), "moves", moves.String())

	writeScript(out, script, styled)

	if flags.unified {
		text, err := diff.Unified(oldSnap, newSnap, flags.context)
		if err != nil {
			return err
		}
		if text != "" {
			fmt.Fprintln(out)
			fmt.Fprint(out, text)
		}
	}
	return nil
}

func opStyle(k diff.OpKind) lipgloss.Style {
	switch k {
	case diff.OpDeleteItem, diff.OpDeleteSection:
		return ux.Styles.Deleted
	case diff.OpInsertItem, diff.OpInsertSection:
		return ux.Styles.Inserted
	case diff.OpMoveItem, diff.OpMoveSection:
		return ux.Styles.Moved
	default:
		return ux.Styles.Reloaded
	}
}

// writeScript prints one op per line followed by a summary line.
func writeScript(out io.Writer, script *diff.EditScript[string, string], styled bool) {
	for _, op := range script.Ops() {
		line := op.String()
		if styled {
			line = opStyle(op.Kind).Render(line)
		}
		fmt.Fprintln(out, line)
	}
	summary := summarize(script.Counts())
	if styled {
		summary = ux.Styles.Muted.Render(summary)
	}
	fmt.Fprintln(out, summary)
}

func summarize(c diff.Counts) string {
	if c.Total() == 0 {
		return "no changes"
	}
	parts := []struct {
		n    int
		name string
	}{
		{c.SectionDeletes, "section delete"},
		{c.SectionInserts, "section insert"},
		{c.SectionMoves, "section move"},
		{c.ItemDeletes, "item delete"},
		{c.ItemInserts, "item insert"},
		{c.ItemMoves, "item move"},
		{c.Reloads, "reload"},
	}
	var out []string
	for _, p := range parts {
		if p.n == 0 {
			continue
		}
		name := p.name
		if p.n > 1 {
			name += "s"
		}
		out = append(out, fmt.Sprintf("%d %s", p.n, name))
	}
	return fmt.Sprintf("%d ops: %s", c.Total(), strings.Join(out, ", "))
}
