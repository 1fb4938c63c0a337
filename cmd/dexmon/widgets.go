// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"image/color"
	"image/draw"
	"slices"
	"strconv"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/freesans"

	"github.com/kortschak/cgm/battery"
	"github.com/kortschak/cgm/glucose"
)

type readingPanel struct {
	img draw.Image
}

func newReadingPanel(img draw.Image) *readingPanel {
	return &readingPanel{img: img}
}

// set renders the glucose value centred over its trend and the
// transmitter battery state.
func (p *readingPanel) set(r glucose.Record, b battery.Status) {
	blank(p.img)
	width := p.img.Bounds().Dx()
	y := 0
	for _, l := range []struct {
		text string
		font *tinyfont.Font
	}{
		{text: valueText(r), font: &freesans.Bold18pt7b},
		{text: trendText(r.Trend), font: &freesans.Regular9pt7b},
		{text: batteryText(b), font: &freesans.Regular9pt7b},
	} {
		y += int(l.font.YAdvance)
		_, w := tinyfont.LineWidth(l.font, l.text)
		tinyfont.WriteLine(
			displayShim{p.img},
			l.font,
			int16(width-int(w))/2, int16(y), l.text,
			color.RGBA{A: 0xff},
		)
	}
}

func valueText(r glucose.Record) string {
	if !r.HasValue() {
		return "-"
	}
	s := strconv.Itoa(r.Value)
	if r.DisplayOnly {
		s += "*"
	}
	return s
}

func trendText(t glucose.Trend) string {
	if t == glucose.NoTrend {
		return "-"
	}
	s := t.String() + "/min"
	if t > 0 {
		s = "+" + s
	}
	return s
}

func batteryText(b battery.Status) string {
	switch {
	case !b.Valid:
		return ""
	case b.Low():
		return "battery low"
	default:
		return strconv.Itoa(b.VoltageA) + "/" + strconv.Itoa(b.VoltageB)
	}
}

type historyPlot struct {
	img draw.Image
}

func newHistoryPlot(img draw.Image) *historyPlot {
	return &historyPlot{img: img}
}

// width returns the number of readings the plot can show, one per
// pixel column.
func (p *historyPlot) width() int {
	return p.img.Bounds().Dx()
}

// set plots readings against their slot, leaving gaps for missing
// slots.
func (p *historyPlot) set(recs []glucose.Record) {
	blank(p.img)
	recs = slices.DeleteFunc(slices.Clone(recs), func(r glucose.Record) bool {
		return !r.HasValue()
	})
	if len(recs) < 2 {
		return
	}
	const (
		lowTarget  = 70
		highTarget = 180
		minRange   = 60
	)
	lo, hi := recs[0].Value, recs[0].Value
	for _, r := range recs[1:] {
		lo = min(lo, r.Value)
		hi = max(hi, r.Value)
	}
	height := p.img.Bounds().Dy()
	y := func(v int) int {
		return height - 1 - scale(v, lo, hi, minRange, height-1)
	}
	first := recs[len(recs)-1].ID - p.width() + 1
	for _, target := range []int{lowTarget, highTarget} {
		if lo <= target && target <= hi {
			dotted(p.img, y(target), color.Gray{Y: 0x80})
		}
	}
	for i, r := range recs[1:] {
		prev := recs[i]
		if prev.ID < first || r.ID-prev.ID > 1 {
			continue
		}
		line(p.img, prev.ID-first, y(prev.Value), r.ID-first, y(r.Value), color.Black)
	}
}
