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
	"slices"
)

type insertStep[K comparable] struct {
	key   K
	index int
}

type moveStep[K comparable] struct {
	key      K
	from, to int
}

// arrange plans the inserts and moves that turn cur into target.
//
// Description:
//
//	cur holds only keys that also appear in target. Keys of target missing
//	from cur are inserted; keys of cur outside stable are moved.
//
//	Inserts run in ascending target order and land right after the nearest
//	preceding target key that is not going to move (index 0 if none). After
//	the inserts, stable and inserted keys are already in target order.
//
//	Moves then run in ascending target order. Each mover is removed and
//	reinserted right after its target predecessor, which has already reached
//	its final relative position. A move whose source and destination
//	coincide is dropped.
//
// Outputs:
//   - []insertStep: Inserts with sequential indices.
//   - []moveStep: Moves with sequential indices.
//   - error: ErrPlanDiverged if the simulated list does not equal target.
func arrange[K comparable](cur, target []K, stable map[K]struct{}) ([]insertStep[K], []moveStep[K], error) {
	list := slices.Clone(cur)
	present := make(map[K]struct{}, len(cur))
	for _, k := range cur {
		present[k] = struct{}{}
	}

	var inserts []insertStep[K]
	var anchor K
	anchored := false
	for _, k := range target {
		if _, ok := present[k]; !ok {
			at := 0
			if anchored {
				at = slices.Index(list, anchor) + 1
			}
			list = slices.Insert(list, at, k)
			inserts = append(inserts, insertStep[K]{key: k, index: at})
			anchor, anchored = k, true
			continue
		}
		if _, ok := stable[k]; ok {
			anchor, anchored = k, true
		}
	}

	var moves []moveStep[K]
	for i, k := range target {
		if _, ok := present[k]; !ok {
			continue
		}
		if _, ok := stable[k]; ok {
			continue
		}
		from := slices.Index(list, k)
		list = slices.Delete(list, from, from+1)
		to := 0
		if i > 0 {
			to = slices.Index(list, target[i-1]) + 1
		}
		list = slices.Insert(list, to, k)
		if from != to {
			moves = append(moves, moveStep[K]{key: k, from: from, to: to})
		}
	}

	if !slices.Equal(list, target) {
		return nil, nil, fmt.Errorf("%w: got %v, want %v", ErrPlanDiverged, list, target)
	}
	return inserts, moves, nil
}
