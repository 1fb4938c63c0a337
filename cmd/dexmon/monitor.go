// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"image"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/kortschak/cgm"
	"github.com/kortschak/cgm/battery"
	"github.com/kortschak/cgm/dexcom"
	"github.com/kortschak/cgm/glucose"
	"github.com/kortschak/cgm/sensor"
)

// backfillWindow is how far back readings are requested once the
// session is streaming.
const backfillWindow = 3 * time.Hour

type monitor struct {
	l       *dexcom.Listener
	tx      *dexcom.Transmitter
	sensor  *sensor.Sensor
	history *glucose.History
	sniff   bool
	log     cgm.Logger

	card    *image.Gray
	reading *readingPanel
	plot    *historyPlot
	update  chan image.Image
}

func newMonitor(dev *bluetooth.Device, s *sensor.Sensor, sniff bool, log cgm.Logger, update chan image.Image) (*monitor, error) {
	l, err := dexcom.NewListener(dev)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}
	h := &glucose.History{}
	opts := []dexcom.Option{dexcom.WithLogger(log), dexcom.WithHistory(h)}
	if sniff {
		opts = append(opts, dexcom.WithSniffing())
	}
	tx := dexcom.NewTransmitter(s, l, opts...)
	err = l.Listen(tx, func(err error) {
		log.Error("failed to handle transmitter message", "error", err)
	})
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen for authentication: %w", err)
	}

	card := image.NewGray(image.Rectangle{Max: image.Point{X: 296, Y: 128}})
	blank(card)
	return &monitor{
		l:       l,
		tx:      tx,
		sensor:  s,
		history: h,
		sniff:   sniff,
		log:     log,
		card:    card,
		reading: newReadingPanel(subDrawImage(card, image.Rectangle{
			Max: image.Point{X: 96, Y: 128},
		})),
		plot: newHistoryPlot(subDrawImage(card, image.Rectangle{
			Min: image.Point{X: 96, Y: 0},
			Max: image.Point{X: 296, Y: 128},
		})),
		update: update,
	}, nil
}

// run drives the session and renders new readings until ctx is
// cancelled.
func (m *monitor) run(ctx context.Context) error {
	if !m.sniff {
		var token [8]byte
		rand.Read(token[:])
		err := m.l.Write(dexcom.Authentication, dexcom.AuthRequest(m.sensor.Type, token), true)
		if err != nil {
			return fmt.Errorf("failed to request authentication: %w", err)
		}
	}

	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	var (
		bondRequested bool
		requested     bool
		backfilled    bool
		lastID        = -1
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}

		if !m.sniff {
			switch state := m.tx.State(); {
			case state == dexcom.Authenticated && !bondRequested:
				bondRequested = true
				for _, req := range [][]byte{dexcom.KeepAliveRequest(25), dexcom.BondRequestMessage()} {
					err := m.l.Write(dexcom.Authentication, req, true)
					if err != nil {
						return fmt.Errorf("failed to request bond: %w", err)
					}
				}
			case state >= dexcom.Bonded && !requested:
				requested = true
				for _, req := range [][]byte{
					dexcom.TransmitterTimeRequest(),
					battery.Request(),
					dexcom.GlucoseRequest(m.sensor.Type),
				} {
					err := m.tx.Request(req)
					if err != nil {
						return err
					}
				}
			}
		}

		last := m.tx.Last()
		if !m.sniff && !backfilled && m.sensor.Type != sensor.DexcomG7 && last.HasValue() && !m.tx.Activation().IsZero() {
			backfilled = true
			end := last.Timestamp
			start := end - min(end, uint32(backfillWindow/time.Second))
			err := m.tx.Request(dexcom.BackfillRequest(start, end))
			if err != nil {
				return err
			}
			m.log.Info("requested backfill", "start", start, "end", end)
		}
		if !last.HasValue() || last.ID == lastID {
			continue
		}
		lastID = last.ID
		m.reading.set(last, m.tx.Battery())
		m.plot.set(m.history.Last(m.plot.width()))
		select {
		case m.update <- m.card:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *monitor) Close() error {
	return m.l.Close()
}
