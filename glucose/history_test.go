// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package glucose

import (
	"math"
	"reflect"
	"testing"
	"time"
)

func rec(ts uint32, val int) Record {
	return Record{
		ID:        SlotID(ts),
		Timestamp: ts,
		Date:      time.Unix(1700000000+int64(ts), 0).UTC(),
		Value:     val,
		Trend:     NoTrend,
		Predicted: NoValue,
		Valid:     true,
	}
}

func ids(recs []Record) []int {
	ids := make([]int, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}

var historyTests = []struct {
	name    string
	batches [][]Record
	added   []int
	want    []int
}{
	{
		name:    "ordered",
		batches: [][]Record{{rec(0, 100), rec(300, 101), rec(600, 102)}},
		added:   []int{3},
		want:    []int{0, 1, 2},
	},
	{
		name:    "reversed",
		batches: [][]Record{{rec(900, 100), rec(600, 101), rec(0, 102)}},
		added:   []int{3},
		want:    []int{0, 2, 3},
	},
	{
		name: "duplicate_record_twice",
		batches: [][]Record{
			{rec(1200, 110)},
			{rec(1200, 110)},
		},
		added: []int{1, 0},
		want:  []int{4},
	},
	{
		name: "backfill_overlaps_live",
		batches: [][]Record{
			{rec(1500, 120), rec(1800, 121)},
			{rec(900, 90), rec(1200, 95), rec(1510, 999), rec(1800, 998)},
		},
		added: []int{2, 2},
		want:  []int{3, 4, 5, 6},
	},
	{
		name: "invalid_and_valueless_skipped",
		batches: [][]Record{{
			func() Record { r := rec(0, 100); r.Valid = false; return r }(),
			rec(300, NoValue),
			rec(600, 80),
		}},
		added: []int{1},
		want:  []int{2},
	},
}

func TestHistoryMerge(t *testing.T) {
	for _, test := range historyTests {
		t.Run(test.name, func(t *testing.T) {
			var h History
			for i, b := range test.batches {
				if n := h.Merge(b...); n != test.added[i] {
					t.Errorf("unexpected added count for batch %d: got:%d want:%d", i, n, test.added[i])
				}
			}
			got := ids(h.Records())
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("unexpected ids:\ngot: %v\nwant:%v", got, test.want)
			}
		})
	}
}

func TestHistoryFirstWins(t *testing.T) {
	var h History
	h.Merge(rec(1500, 120))
	h.Merge(rec(1510, 999))
	r, ok := h.Lookup(5)
	if !ok || r.Value != 120 {
		t.Errorf("expected first reading to be kept, got %v %t", r, ok)
	}
	if _, ok := h.Lookup(6); ok {
		t.Error("unexpected record for empty slot")
	}
}

func TestHistoryLast(t *testing.T) {
	var h History
	for ts := uint32(0); ts < 3000; ts += 300 {
		h.Merge(rec(ts, int(ts/10)))
	}
	if got := ids(h.Last(3)); !reflect.DeepEqual(got, []int{7, 8, 9}) {
		t.Errorf("unexpected last ids: %v", got)
	}
	if got := h.Last(20); len(got) != 10 {
		t.Errorf("unexpected length of over-long request: %d", len(got))
	}
	if got := h.Last(-1); len(got) != 0 {
		t.Errorf("unexpected length of negative request: %d", len(got))
	}
	h.Reset()
	if h.Len() != 0 {
		t.Errorf("expected empty history after reset, got %d", h.Len())
	}
}

func TestSlotIDMonotonic(t *testing.T) {
	prev := -1
	for ts := uint32(0); ts < 24*3600; ts += 97 {
		id := SlotID(ts)
		if id < prev {
			t.Fatalf("slot id decreased at %d: %d < %d", ts, id, prev)
		}
		if id != int(ts)/300 {
			t.Fatalf("unexpected slot id for %d: %d", ts, id)
		}
		prev = id
	}
}

func TestTrend(t *testing.T) {
	if got := Trend(-12).Rate(); got != -1.2 {
		t.Errorf("unexpected rate: %v", got)
	}
	if !math.IsNaN(NoTrend.Rate()) {
		t.Error("expected NaN rate for NoTrend")
	}
	if got := Trend(1).String(); got != "0.1" {
		t.Errorf("unexpected string: %q", got)
	}
	if got := NoTrend.String(); got != "-" {
		t.Errorf("unexpected string: %q", got)
	}
}
