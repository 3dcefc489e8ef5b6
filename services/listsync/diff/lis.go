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

import "sort"

// stableSet returns the keys that keep their relative order between cur and
// target, which must contain the same keys.
//
// Description:
//
//	Both sequences are permutations of one key set, so their longest common
//	subsequence is the longest increasing subsequence of cur positions read
//	in target order. Patience sorting finds it in O(n log n). Among equally
//	long subsequences the one reconstructed from the last pile is kept: it
//	ends on the smallest cur position any longest run can end on.
//
//	Every key outside the returned set must move.
func stableSet[K comparable](cur, target []K) map[K]struct{} {
	pos := make(map[K]int, len(cur))
	for i, k := range cur {
		pos[k] = i
	}
	seq := make([]int, len(target))
	for i, k := range target {
		seq[i] = pos[k]
	}

	keep := lis(seq)
	out := make(map[K]struct{}, len(keep))
	for _, i := range keep {
		out[target[i]] = struct{}{}
	}
	return out
}

// lis returns the indices into seq of one longest strictly increasing
// subsequence, in ascending order.
func lis(seq []int) []int {
	if len(seq) == 0 {
		return nil
	}
	// tails[l] is the index in seq of the smallest tail of an increasing
	// run of length l+1; prev links each index to its predecessor in a run.
	tails := make([]int, 0, len(seq))
	prev := make([]int, len(seq))
	for i, v := range seq {
		l := sort.Search(len(tails), func(j int) bool { return seq[tails[j]] >= v })
		if l > 0 {
			prev[i] = tails[l-1]
		} else {
			prev[i] = -1
		}
		if l == len(tails) {
			tails = append(tails, i)
		} else {
			tails[l] = i
		}
	}

	out := make([]int, len(tails))
	for i, k := len(tails)-1, tails[len(tails)-1]; i >= 0; i, k = i-1, prev[k] {
		out[i] = k
	}
	return out
}
