// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package glucose

import (
	"slices"
	"sync"
)

// History is the glucose series of one sensor session ordered by
// slot ID. Backfill ranges overlap live readings, so merging is
// idempotent: the first reading seen for a slot is kept.
//
// A History is safe for concurrent use.
type History struct {
	mu      sync.Mutex
	records []Record
}

// Merge inserts the valid records that have a value and whose slot is
// not already present. It returns the number of records added.
func (h *History) Merge(recs ...Record) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	var added int
	for _, r := range recs {
		if !r.Valid || !r.HasValue() {
			continue
		}
		i, found := slices.BinarySearchFunc(h.records, r.ID, cmpID)
		if found {
			continue
		}
		h.records = slices.Insert(h.records, i, r)
		added++
	}
	return added
}

func cmpID(r Record, id int) int { return r.ID - id }

// Len returns the number of records in the history.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Records returns a copy of the history in increasing ID order.
func (h *History) Records() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.records)
}

// Last returns up to n of the most recent records in increasing ID
// order.
func (h *History) Last(n int) []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	n = min(max(n, 0), len(h.records))
	return slices.Clone(h.records[len(h.records)-n:])
}

// Lookup returns the record for the slot id.
func (h *History) Lookup(id int) (Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	i, found := slices.BinarySearchFunc(h.records, id, cmpID)
	if !found {
		return Record{}, false
	}
	return h.records[i], true
}

// Reset empties the history for a new sensor session.
func (h *History) Reset() {
	h.mu.Lock()
	h.records = nil
	h.mu.Unlock()
}
