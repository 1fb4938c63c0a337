// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dexcom

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/kortschak/cgm"
	"github.com/kortschak/cgm/codec"
	"github.com/kortschak/cgm/glucose"
)

const (
	noValue16  = 0xffff
	valueMask  = 0x0fff
	noTrend    = 0x7f
	displayBit = 0x10
)

// TimeMessage is a transmitter time response.
//
//	0  1  2 3 4 5  6 7 8 9  1011
//	OP ST AGAGAGAG SSSSSSSS CRCR
type TimeMessage struct {
	Status       uint8
	Age          uint32 // seconds since activation
	SessionStart uint32 // seconds since activation
	CRC          uint16
	Valid        bool
}

func (m *TimeMessage) UnmarshalBinary(data []byte) error {
	const size = 12
	if err := cgm.Short("transmitter time", len(data), size); err != nil {
		return err
	}
	_, crc, ok := codec.Trailer(data[:size])
	*m = TimeMessage{
		Status:       data[1],
		Age:          binary.LittleEndian.Uint32(data[2:]),
		SessionStart: binary.LittleEndian.Uint32(data[6:]),
		CRC:          crc,
		Valid:        ok,
	}
	return nil
}

// GlucoseMessage is a G6 or ONE glucose response.
//
//	0  1  2 3 4 5  6 7 8 9  1011 12 13 1415
//	OP ST SQSQSQSQ TTTTTTTT BGBG SS TR CRCR
type GlucoseMessage struct {
	Status      uint8
	Sequence    uint32
	Timestamp   uint32 // seconds since activation
	Glucose     uint16 // mg/dL
	DisplayOnly bool
	State       AlgorithmState
	Trend       int8 // tenths of mg/dL/min
	CRC         uint16
	Valid       bool
}

func (m *GlucoseMessage) UnmarshalBinary(data []byte) error {
	const size = 16
	if err := cgm.Short("glucose", len(data), size); err != nil {
		return err
	}
	_, crc, ok := codec.Trailer(data[:size])
	raw := binary.LittleEndian.Uint16(data[10:])
	*m = GlucoseMessage{
		Status:      data[1],
		Sequence:    binary.LittleEndian.Uint32(data[2:]),
		Timestamp:   binary.LittleEndian.Uint32(data[6:]),
		Glucose:     raw & valueMask,
		DisplayOnly: raw&^valueMask != 0,
		State:       AlgorithmState(data[12]),
		Trend:       int8(data[13]),
		CRC:         crc,
		Valid:       ok,
	}
	return nil
}

// Record returns the reading in m dated relative to activation.
func (m GlucoseMessage) Record(activation time.Time) glucose.Record {
	return glucose.Record{
		ID:          glucose.SlotID(m.Timestamp),
		Timestamp:   m.Timestamp,
		Date:        dateOf(activation, m.Timestamp),
		Value:       int(m.Glucose),
		Trend:       glucose.Trend(m.Trend),
		Predicted:   glucose.NoValue,
		State:       uint8(m.State),
		DisplayOnly: m.DisplayOnly,
		Valid:       m.Valid,
	}
}

// G7GlucoseMessage is a G7 glucose response. G7 messages carry no CRC.
//
//	0  1  2 3 4 5  6 7  8  9  10 11 1213 14 15 1617 18
//	OP ST TTTTTTTT SQSQ       AG    BGBG SS TR PRPR C
type G7GlucoseMessage struct {
	Status uint8
	// MessageTimestamp is the time the message was sent in
	// seconds since pairing.
	MessageTimestamp uint32
	Sequence         uint16
	// Age is the delay in seconds between the sample and the
	// message.
	Age uint8
	// Timestamp is the sample time in seconds since pairing.
	Timestamp   uint32
	Glucose     int // mg/dL or glucose.NoValue
	State       AlgorithmState
	Trend       glucose.Trend
	Predicted   int // mg/dL or glucose.NoValue
	Calibration uint8
	DisplayOnly bool
}

func (m *G7GlucoseMessage) UnmarshalBinary(data []byte) error {
	const size = 19
	if err := cgm.Short("g7 glucose", len(data), size); err != nil {
		return err
	}
	ts := binary.LittleEndian.Uint32(data[2:])
	age := data[10]
	sample := ts - min(uint32(age), ts)
	value, present := maskedValue(binary.LittleEndian.Uint16(data[12:]))
	predicted, _ := maskedValue(binary.LittleEndian.Uint16(data[16:]))
	*m = G7GlucoseMessage{
		Status:           data[1],
		MessageTimestamp: ts,
		Sequence:         binary.LittleEndian.Uint16(data[6:]),
		Age:              age,
		Timestamp:        sample,
		Glucose:          value,
		State:            AlgorithmState(data[14]),
		Trend:            g7Trend(data[15]),
		Predicted:        predicted,
		Calibration:      data[18],
		DisplayOnly:      present && data[18]&displayBit != 0,
	}
	return nil
}

// Record returns the reading in m dated relative to activation.
func (m G7GlucoseMessage) Record(activation time.Time) glucose.Record {
	return glucose.Record{
		ID:          glucose.SlotID(m.Timestamp),
		Timestamp:   m.Timestamp,
		Date:        dateOf(activation, m.Timestamp),
		Value:       m.Glucose,
		Trend:       m.Trend,
		Predicted:   m.Predicted,
		State:       uint8(m.State),
		DisplayOnly: m.DisplayOnly,
		Valid:       true,
	}
}

// BackfillHeader is the control message that closes a G6 backfill
// stream.
//
//	0  1  2  3  4 5 6 7  8 9 1011 12131415 1617 1819
//	OP ST BS ID SSSSSSSS EEEEEEEE LLLLLLLL BCBC CRCR
type BackfillHeader struct {
	Status         uint8
	BackfillStatus uint8
	Identifier     uint8
	Start          uint32 // seconds since activation
	End            uint32 // seconds since activation
	BufferLength   uint32
	BufferCRC      uint16
	CRC            uint16
	Valid          bool
}

func (m *BackfillHeader) UnmarshalBinary(data []byte) error {
	const size = 18
	if err := cgm.Short("backfill header", len(data), size); err != nil {
		return err
	}
	*m = BackfillHeader{
		Status:         data[1],
		BackfillStatus: data[2],
		Identifier:     data[3],
		Start:          binary.LittleEndian.Uint32(data[4:]),
		End:            binary.LittleEndian.Uint32(data[8:]),
		BufferLength:   binary.LittleEndian.Uint32(data[12:]),
		BufferCRC:      binary.LittleEndian.Uint16(data[16:]),
		// Headers without a trailer are accepted as valid.
		Valid: true,
	}
	if len(data) >= size+2 {
		_, m.CRC, m.Valid = codec.Trailer(data[:size+2])
	}
	return nil
}

func maskedValue(raw uint16) (int, bool) {
	if raw == noValue16 {
		return glucose.NoValue, false
	}
	return int(raw & valueMask), true
}

func g7Trend(b byte) glucose.Trend {
	if b == noTrend {
		return glucose.NoTrend
	}
	return glucose.Trend(int8(b))
}

func dateOf(activation time.Time, ts uint32) time.Time {
	if activation.IsZero() {
		return time.Time{}
	}
	return activation.Add(time.Duration(ts) * time.Second)
}

func (m GlucoseMessage) String() string {
	return fmt.Sprintf("status: %#02x sequence: %d timestamp: %d glucose: %d display only: %t state: %s trend: %d valid CRC: %t",
		m.Status, m.Sequence, m.Timestamp, m.Glucose, m.DisplayOnly, m.State, m.Trend, m.Valid)
}
