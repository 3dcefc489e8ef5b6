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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/listsync/services/listsync/apply"
	"github.com/AleutianAI/listsync/services/listsync/coalesce"
	"github.com/AleutianAI/listsync/services/listsync/snapfile"
	"github.com/AleutianAI/listsync/services/listsync/tui"
	"github.com/AleutianAI/listsync/services/listsync/watch"
)

type watchFlags struct {
	plain    bool
	debounce time.Duration
}

func newWatchCmd(e *env) *cobra.Command {
	var flags watchFlags
	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Keep a list in sync with a snapshot file as it changes",
		Long: `Watches a YAML snapshot document and applies every saved version to a
live list through the update coalescer. In a terminal the list is drawn with
the rows touched by the last update highlighted; otherwise each applied update
is printed as a line.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			interactive := !flags.plain && isTerminal(cmd.OutOrStdout())
			return e.runWatch(ctx, cmd.OutOrStdout(), args[0], flags, interactive)
		},
	}
	cmd.Flags().BoolVar(&flags.plain, "plain", false, "print updates as lines instead of drawing the list")
	cmd.Flags().DurationVar(&flags.debounce, "debounce", watch.DefaultOptions().Debounce, "quiet period for file events")
	return cmd
}

// newPipeline wires an applicator and a coalescer to list.
func (e *env) newPipeline(list apply.LiveList[string, string], streamPrefix string) (*coalesce.Coalescer[string, string], error) {
	acfg, err := e.cfg.ApplyConfig()
	if err != nil {
		return nil, err
	}
	ccfg, err := e.cfg.CoalescerConfig()
	if err != nil {
		return nil, err
	}
	if ccfg.StreamID == "" {
		ccfg.ApplyDefaults()
		ccfg.StreamID = streamPrefix + "-" + ccfg.StreamID[:8]
	}
	app := apply.New(list, acfg, e.slog())
	return coalesce.New(app, ccfg, e.slog())
}

func (e *env) runWatch(ctx context.Context, out io.Writer, path string, flags watchFlags, interactive bool) error {
	opts, err := e.cfg.SnapshotOptions()
	if err != nil {
		return err
	}
	view := tui.NewListView()
	c, err := e.newPipeline(view, "watch")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()
	defer c.Close()

	w, err := watch.New(path, snapfile.NewLoader(opts...), c, &watch.Options{Debounce: flags.debounce}, e.slog())
	if err != nil {
		return err
	}
	defer w.Stop()

	if interactive {
		return e.watchInteractive(ctx, view, c, w, path)
	}
	fmt.Fprintf(out, "watching %s (stream %s)\n", path, c.StreamID())
	err = e.watchPlain(ctx, out, c, w, runErr)
	fmt.Fprintln(out, ticketSummary(w.Tickets()))
	return err
}

// ticketSummary reports how the watcher's recent submissions ended, in
// outcome order. Unfinished tickets count as pending.
func ticketSummary(tickets []*coalesce.Ticket[string, string]) string {
	counts := map[coalesce.Outcome]int{}
	for _, t := range tickets {
		select {
		case <-t.Done():
			o, _ := t.Wait(context.Background())
			counts[o]++
		default:
			counts[coalesce.OutcomePending]++
		}
	}
	var parts []string
	for o := coalesce.OutcomePending; o <= coalesce.OutcomeDropped; o++ {
		if n := counts[o]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, o))
		}
	}
	if len(parts) == 0 {
		return "stopped: no updates"
	}
	return "stopped: " + strings.Join(parts, ", ")
}

func (e *env) watchInteractive(ctx context.Context, view *tui.ListView, c *coalesce.Coalescer[string, string], w *watch.Watcher, path string) error {
	p := tea.NewProgram(tui.NewModel(tui.Config{Title: path}, nil), tea.WithAltScreen(), tea.WithContext(ctx))
	view.SetSender(p.Send)
	unsubscribe := c.Subscribe(func(ev coalesce.Event[string, string]) { p.Send(tui.EventMsg(ev)) })
	defer unsubscribe()

	if err := w.Start(ctx); err != nil {
		return err
	}
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (e *env) watchPlain(ctx context.Context, out io.Writer, c *coalesce.Coalescer[string, string], w *watch.Watcher, runErr <-chan error) error {
	var mu sync.Mutex
	unsubscribe := c.Subscribe(func(ev coalesce.Event[string, string]) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Outcome {
		case coalesce.OutcomeApplied:
			fmt.Fprintf(out, "#%d %s %d ops: %s\n", ev.Generation, ev.Result.Mode, ev.Result.Script.Len(), ev.Snapshot)
		case coalesce.OutcomeFailed:
			fmt.Fprintf(out, "#%d failed: %v\n", ev.Generation, ev.Err)
		}
	})
	defer unsubscribe()

	if err := w.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return nil
	case err := <-runErr:
		return err
	}
}
