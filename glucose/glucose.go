// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package glucose provides the glucose reading type shared by the
// sensor protocols and a history that merges readings from live
// notifications and backfill into one ordered series.
package glucose

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// SlotDuration is the width of the time slot a reading ID identifies.
const SlotDuration = 5 * time.Minute

// NoValue marks a reading without a glucose value.
const NoValue = -1

// SlotID returns the 5-minute slot key for a timestamp in seconds since
// sensor activation.
func SlotID(timestamp uint32) int {
	return int(timestamp / uint32(SlotDuration/time.Second))
}

// Trend is a rate of change in tenths of mg/dL per minute.
type Trend int16

// NoTrend marks a reading without a trend.
const NoTrend Trend = math.MinInt16

// Rate returns the trend in mg/dL per minute, or NaN if there is no
// trend.
func (t Trend) Rate() float64 {
	if t == NoTrend {
		return math.NaN()
	}
	return float64(t) / 10
}

func (t Trend) String() string {
	if t == NoTrend {
		return "-"
	}
	return strconv.FormatFloat(t.Rate(), 'f', 1, 64)
}

// Record is a glucose reading.
type Record struct {
	// ID is the 5-minute slot of the reading, floor(Timestamp/300).
	ID int
	// Timestamp is the sample time in seconds since activation.
	Timestamp uint32
	Date      time.Time

	Value     int   // mg/dL or NoValue
	Trend     Trend // NoTrend when absent
	Predicted int   // mg/dL or NoValue

	// State is the vendor algorithm state byte.
	State       uint8
	DisplayOnly bool

	// Valid is false when the frame carrying the reading failed its
	// integrity check.
	Valid      bool
	Backfilled bool
}

// HasValue returns whether the reading carries a glucose value.
func (r Record) HasValue() bool { return r.Value != NoValue }

func (r Record) String() string {
	val := "-"
	if r.HasValue() {
		val = strconv.Itoa(r.Value)
	}
	return fmt.Sprintf("#%d %s %s mg/dL trend %s", r.ID, r.Date.Format(time.DateTime), val, r.Trend)
}
