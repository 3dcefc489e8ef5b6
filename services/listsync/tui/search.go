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
	"slices"
	"strings"
	"time"

	"github.com/AleutianAI/listsync/services/listsync/coalesce"
	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

// Entry is one searchable row.
type Entry struct {
	Section string
	Name    string
}

// DefaultCorpus is the data the search demo filters.
var DefaultCorpus = []Entry{
	{"fruit", "apple"}, {"fruit", "apricot"}, {"fruit", "banana"},
	{"fruit", "blackberry"}, {"fruit", "cherry"}, {"fruit", "grape"},
	{"fruit", "papaya"}, {"fruit", "pineapple"},
	{"vegetable", "asparagus"}, {"vegetable", "broccoli"}, {"vegetable", "carrot"},
	{"vegetable", "celery"}, {"vegetable", "parsnip"}, {"vegetable", "pea"},
	{"software", "application"}, {"software", "applet"}, {"software", "appliance firmware"},
	{"software", "compiler"}, {"software", "package manager"}, {"software", "parser"},
}

// Search filters corpus by a case-insensitive substring query.
//
// Description:
//
//	Sections keep their order of first appearance in corpus and only
//	sections with matches are included. Within a section, earlier match
//	positions come first (so prefix matches lead), then shorter names, then
//	alphabetical order. An empty query matches everything.
//
// Outputs:
//   - *Snapshot: The results.
//   - error: A snapshot invariant error if corpus repeats a name.
func Search(corpus []Entry, query string) (*Snapshot, error) {
	q := strings.ToLower(strings.TrimSpace(query))

	type hit struct {
		name string
		pos  int
	}
	var order []string
	hits := map[string][]hit{}
	for _, e := range corpus {
		pos := strings.Index(strings.ToLower(e.Name), q)
		if pos < 0 {
			continue
		}
		if _, ok := hits[e.Section]; !ok {
			order = append(order, e.Section)
		}
		hits[e.Section] = append(hits[e.Section], hit{name: e.Name, pos: pos})
	}

	b := snapshot.NewBuilder[string, string]()
	for _, sec := range order {
		hs := hits[sec]
		slices.SortStableFunc(hs, func(a, b hit) int {
			if a.pos != b.pos {
				return a.pos - b.pos
			}
			if len(a.name) != len(b.name) {
				return len(a.name) - len(b.name)
			}
			return strings.Compare(a.name, b.name)
		})
		names := make([]string, len(hs))
		for i, h := range hs {
			names[i] = h.name
		}
		b.AppendSections(sec).AppendItems(names, sec)
	}
	return b.Build()
}

// DefaultLatency simulates a backend that answers short, broad queries more
// slowly than long, narrow ones, so earlier keystrokes tend to finish last.
func DefaultLatency(query string) time.Duration {
	d := 400*time.Millisecond - time.Duration(len(query))*80*time.Millisecond
	if d < 20*time.Millisecond {
		d = 20 * time.Millisecond
	}
	return d
}

// SearchProducer returns a producer that waits latency(query) and then
// runs Search. It returns ctx.Err() if superseded while waiting.
func SearchProducer(corpus []Entry, query string, latency func(string) time.Duration) coalesce.Producer[string, string] {
	if latency == nil {
		latency = DefaultLatency
	}
	return func(ctx context.Context) (*Snapshot, error) {
		timer := time.NewTimer(latency(query))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
		return Search(corpus, query)
	}
}
