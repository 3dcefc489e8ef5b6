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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/listsync/services/listsync/coalesce"
	"github.com/AleutianAI/listsync/services/listsync/snapfile"
	"github.com/AleutianAI/listsync/services/listsync/tui"
)

type searchFlags struct {
	corpus  string
	latency float64
}

func newSearchCmd(e *env) *cobra.Command {
	var flags searchFlags
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search-as-you-type demo with out-of-order backend responses",
		Long: `Filters a corpus on every keystroke. Each keystroke submits a search whose
simulated latency is longer for shorter queries, so responses arrive out of
order; only the latest query's results reach the list.

Without a terminal, queries are read from stdin one per line and the final
list is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			corpus, err := loadCorpus(flags.corpus, e)
			if err != nil {
				return err
			}
			latency := scaledLatency(flags.latency)
			if isTerminal(cmd.OutOrStdout()) && isTerminal(cmd.InOrStdin()) {
				return e.runSearchInteractive(cmd.Context(), corpus, latency)
			}
			return e.runSearchLines(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), corpus, latency)
		},
	}
	cmd.Flags().StringVar(&flags.corpus, "corpus", "", "snapshot file to search instead of the built-in corpus")
	cmd.Flags().Float64Var(&flags.latency, "latency", 1, "multiplier for the simulated backend latency")
	return cmd
}

func scaledLatency(factor float64) func(string) time.Duration {
	return func(q string) time.Duration {
		return time.Duration(float64(tui.DefaultLatency(q)) * factor)
	}
}

// loadCorpus flattens a snapshot file into search entries.
func loadCorpus(path string, e *env) ([]tui.Entry, error) {
	if path == "" {
		return tui.DefaultCorpus, nil
	}
	opts, err := e.cfg.SnapshotOptions()
	if err != nil {
		return nil, err
	}
	snap, err := snapfile.Load(path, opts...)
	if err != nil {
		return nil, err
	}
	var corpus []tui.Entry
	for _, sec := range snap.Sections() {
		for _, it := range snap.Items(sec) {
			corpus = append(corpus, tui.Entry{Section: sec, Name: it})
		}
	}
	return corpus, nil
}

func (e *env) runSearchInteractive(ctx context.Context, corpus []tui.Entry, latency func(string) time.Duration) error {
	view := tui.NewListView()
	c, err := e.newPipeline(view, "search")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = c.Run(ctx) }()
	defer c.Close()

	model := tui.NewModel(tui.Config{Title: "search", Search: true, Corpus: corpus, Latency: latency}, c)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	view.SetSender(p.Send)
	unsubscribe := c.Subscribe(func(ev coalesce.Event[string, string]) { p.Send(tui.EventMsg(ev)) })
	defer unsubscribe()

	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// runSearchLines submits one search per input line, waits for the last one
// and prints what the list shows.
func (e *env) runSearchLines(ctx context.Context, in io.Reader, out io.Writer, corpus []tui.Entry, latency func(string) time.Duration) error {
	view := tui.NewListView()
	c, err := e.newPipeline(view, "search")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = c.Run(ctx) }()
	defer c.Close()

	var last *coalesce.Ticket[string, string]
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		last = c.Submit(tui.SearchProducer(corpus, sc.Text(), latency))
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read queries: %w", err)
	}
	if last == nil {
		return nil
	}
	outcome, err := last.Wait(ctx)
	if err != nil {
		return err
	}
	if outcome != coalesce.OutcomeApplied {
		return fmt.Errorf("last query %s", outcome)
	}
	fmt.Fprintln(out, tui.Render(view.Current(), nil))
	return nil
}
