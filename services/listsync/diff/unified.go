// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

// DefaultContext is the number of context lines in Unified output.
const DefaultContext = 3

// Unified renders both snapshots as indented text and returns a classic
// unified diff of the two renderings.
//
// The rendering puts each section on its own line followed by its items
// indented by two spaces. It is a human view for logs and the CLI; moves show
// up as a removal plus an addition. Returns "" when the renderings match.
// A negative context uses DefaultContext; zero prints changed lines only.
func Unified[S, I snapshot.Key](old, next *snapshot.Snapshot[S, I], context int) (string, error) {
	if context < 0 {
		context = DefaultContext
	}
	u := difflib.UnifiedDiff{
		A:        difflib.SplitLines(Render(old)),
		B:        difflib.SplitLines(Render(next)),
		FromFile: "old",
		ToFile:   "new",
		Context:  context,
	}
	out, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return "", fmt.Errorf("unified diff: %w", err)
	}
	return out, nil
}

// Render returns the indented text form used by Unified.
func Render[S, I snapshot.Key](s *snapshot.Snapshot[S, I]) string {
	var b strings.Builder
	for _, sec := range s.Sections() {
		fmt.Fprintf(&b, "%v:\n", sec)
		for _, it := range s.Items(sec) {
			fmt.Fprintf(&b, "  %v\n", it)
		}
	}
	return b.String()
}
