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
	"reflect"

	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

// Equaler lets a payload decide its own equality.
type Equaler interface {
	Equal(other any) bool
}

// ReloadFromPayloads returns a reload predicate built from both snapshots'
// payload side tables.
//
// Description:
//
//	An item needs a reload when the new snapshot marks it explicitly, when
//	a payload was added or removed, or when the two payloads differ. Payloads
//	implementing Equaler compare with their own method; everything else
//	compares with reflect.DeepEqual.
func ReloadFromPayloads[S, I snapshot.Key](old, next *snapshot.Snapshot[S, I]) func(I) bool {
	return func(item I) bool {
		if next.IsReloaded(item) {
			return true
		}
		was, hadOld := old.Payload(item)
		now, hasNew := next.Payload(item)
		if hadOld != hasNew {
			return true
		}
		if !hasNew {
			return false
		}
		return !payloadEqual(was, now)
	}
}

func payloadEqual(a, b any) bool {
	if eq, ok := a.(Equaler); ok {
		return eq.Equal(b)
	}
	return reflect.DeepEqual(a, b)
}
