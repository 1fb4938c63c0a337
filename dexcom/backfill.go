// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dexcom

import (
	"encoding/binary"
	"slices"
	"time"

	"github.com/kortschak/cgm"
	"github.com/kortschak/cgm/glucose"
)

// Backfill stream framing.
const (
	g6PacketSize    = 20
	g6PacketHeader  = 2
	g6MessageHeader = 4
	g6RecordSize    = 8

	g7RecordSize = 9
)

// backfillBuffer accumulates backfill channel packets until a terminal
// control opcode closes the message. Packets are concatenated in
// arrival order. The leading index byte is kept and is not used to
// reorder packets.
type backfillBuffer struct {
	data    []byte
	packets int
}

// add appends a packet and returns its index byte.
func (b *backfillBuffer) add(pkt []byte) byte {
	b.data = append(b.data, pkt...)
	b.packets++
	return pkt[0]
}

// reset discards the accumulated stream.
func (b *backfillBuffer) reset() {
	b.data = nil
	b.packets = 0
}

func (b *backfillBuffer) len() int { return len(b.data) }

// G6Backfill decodes an accumulated G6 backfill stream. The stream is
// split into 20 byte packets, the 2 byte packet header is removed from
// each, the 4 byte message header from the joined result, and the
// remainder is decoded as 8 byte records. A trailing partial record is
// reported as a decode error along with the records that were decoded.
func G6Backfill(buf []byte, activation time.Time) ([]glucose.Record, error) {
	var payload []byte
	for pkt := range slices.Chunk(buf, g6PacketSize) {
		if len(pkt) > g6PacketHeader {
			payload = append(payload, pkt[g6PacketHeader:]...)
		}
	}
	if len(payload) < g6MessageHeader {
		return nil, nil
	}
	payload = payload[g6MessageHeader:]

	recs := make([]glucose.Record, 0, len(payload)/g6RecordSize)
	for data := range slices.Chunk(payload, g6RecordSize) {
		if len(data) < g6RecordSize {
			return recs, &cgm.DecodeError{Op: "g6 backfill", Need: g6RecordSize, Have: len(data)}
		}
		ts := binary.LittleEndian.Uint32(data)
		raw := binary.LittleEndian.Uint16(data[4:])
		recs = append(recs, glucose.Record{
			ID:          glucose.SlotID(ts),
			Timestamp:   ts,
			Date:        dateOf(activation, ts),
			Value:       int(raw & valueMask),
			Trend:       glucose.Trend(int8(data[7])),
			Predicted:   glucose.NoValue,
			State:       data[6],
			DisplayOnly: raw&^valueMask != 0,
			Valid:       true,
			Backfilled:  true,
		})
	}
	return recs, nil
}

// G7Backfill decodes an accumulated G7 backfill stream of 9 byte
// records. Records without a glucose value are skipped.
//
//	0 1 2 3  4 5  6  7  8
//	TTTTTTTT BGBG SS    TR
func G7Backfill(buf []byte, activation time.Time) ([]glucose.Record, error) {
	recs := make([]glucose.Record, 0, len(buf)/g7RecordSize)
	for data := range slices.Chunk(buf, g7RecordSize) {
		if len(data) < g7RecordSize {
			return recs, &cgm.DecodeError{Op: "g7 backfill", Need: g7RecordSize, Have: len(data)}
		}
		ts := binary.LittleEndian.Uint32(data)
		value, ok := maskedValue(binary.LittleEndian.Uint16(data[4:]))
		if !ok {
			continue
		}
		recs = append(recs, glucose.Record{
			ID:          glucose.SlotID(ts),
			Timestamp:   ts,
			Date:        dateOf(activation, ts),
			Value:       value,
			Trend:       g7Trend(data[8]),
			Predicted:   glucose.NoValue,
			State:       data[6],
			DisplayOnly: data[5]&0xf0 != 0,
			Valid:       true,
			Backfilled:  true,
		})
	}
	return recs, nil
}
