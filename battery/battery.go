// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package battery implements the Dexcom transmitter battery status
// exchange on the control characteristic.
package battery

import (
	"encoding/binary"
	"fmt"

	"github.com/kortschak/cgm"
	"github.com/kortschak/cgm/codec"
)

// Control channel opcodes.
const (
	RequestOpcode  = 0x22
	ResponseOpcode = 0x23
)

// Request returns a battery status request.
func Request() []byte {
	return codec.AppendXModem([]byte{RequestOpcode})
}

// Status is a transmitter battery status.
type Status struct {
	Status      uint8 // 0 ok, 0x81 low battery
	VoltageA    int
	VoltageB    int
	Resistance  int
	Runtime     int // days, -1 when not reported
	Temperature int // °C, -1 when not reported
	Valid       bool
}

func (m *Status) UnmarshalBinary(data []byte) error {
	// 0  1  2 3 4 5 6 7  8  9  1011
	// OP ST VAVA VBVB RR RT TP CRCR
	//
	// Older transmitters send the 10 byte form without the run time
	// and temperature.
	if err := cgm.Short("battery status", len(data), 10); err != nil {
		return err
	}
	if data[0] != ResponseOpcode {
		return &cgm.DecodeError{Op: "battery status", Msg: fmt.Sprintf("unexpected opcode %#02x", data[0])}
	}
	runtime, temperature := -1, -1
	size := 10
	if len(data) >= 12 {
		runtime = int(data[8])
		temperature = int(data[9])
		size = 12
	}
	_, _, ok := codec.Trailer(data[:size])
	*m = Status{
		Status:      data[1],
		VoltageA:    int(binary.LittleEndian.Uint16(data[2:])),
		VoltageB:    int(binary.LittleEndian.Uint16(data[4:])),
		Resistance:  int(binary.LittleEndian.Uint16(data[6:])),
		Runtime:     runtime,
		Temperature: temperature,
		Valid:       ok,
	}
	return nil
}

// Low returns whether the transmitter reports a low battery.
func (m Status) Low() bool { return m.Status == 0x81 }
