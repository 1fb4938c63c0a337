// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sensor implements the model of a CGM sensor or transmitter
// shared by the Dexcom and Libre protocol engines: identity, security
// generation, the FRAM memory image and the activation clock.
package sensor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/kortschak/cgm"
	"github.com/kortschak/cgm/codec"
)

// Type is the sensor hardware variant.
type Type uint8

//go:generate go tool golang.org/x/tools/cmd/stringer -type Type
const (
	Unknown Type = iota
	LibreProH
	Libre1
	LibreUS14Day
	Libre2
	Libre2US
	Libre2CA
	LibreSense
	Libre3
	DexcomG6
	DexcomONE
	DexcomG7
)

// IsLibre returns whether t is an Abbott NFC sensor.
func (t Type) IsLibre() bool { return LibreProH <= t && t <= Libre3 }

// IsDexcom returns whether t is a Dexcom BLE transmitter.
func (t Type) IsDexcom() bool { return DexcomG6 <= t && t <= DexcomG7 }

// State is the Libre sensor life cycle state held in FRAM byte 4.
type State uint8

//go:generate go tool golang.org/x/tools/cmd/stringer -type State -trimprefix State
const (
	StateUnknown State = iota
	StateNotActivated
	StateWarmingUp
	StateActive
	StateExpired
	StateShutdown
	StateFailure
)

// BlockSize is the size of an ISO 15693 memory block.
const BlockSize = 8

// FRAM layout of plaintext Libre 1 and Libre 2 images.
const (
	headerEnd = 24
	bodyEnd   = 320
	footerEnd = 344

	// PlainSize is the smallest image that holds a complete
	// header, body and footer.
	PlainSize = footerEnd

	stateOffset   = 4
	failureOffset = 6
	ageOffset     = 316
	// MaxLifeOffset is the offset of the maximum life field
	// within the footer.
	MaxLifeOffset = 6
)

// Sensor is a CGM sensor or transmitter. The protocol engines read and
// write it through a handle owned by the caller; it is not safe for
// concurrent use.
type Sensor struct {
	Type Type

	UID       []byte // 8 bytes
	PatchInfo []byte
	Serial    string // Dexcom transmitter serial

	// SecurityGeneration is the Libre command and encryption tier.
	SecurityGeneration int

	// FRAM is the memory image; its length is always a multiple of
	// BlockSize. EncryptedFRAM holds the raw image of an encrypted
	// sensor and is empty once the sensor has been decrypted.
	FRAM          []byte
	EncryptedFRAM []byte

	State           State
	ActivationTime  uint32 // Unix seconds
	Age             int    // minutes
	MaxLife         int    // minutes
	LastReadingDate time.Time

	// Libre 3 activation results and parameters.
	BDAddress        bluetooth.MAC
	BLEPIN           [4]byte
	ActivationParams []byte

	// Stale is set when a memory patch sequence aborted. FRAM must
	// be read again before it is trusted.
	Stale bool
}

// NewLibre returns a Libre sensor classified by its patch info.
func NewLibre(uid, patchInfo []byte) *Sensor {
	return &Sensor{
		Type:               TypeFromPatchInfo(patchInfo),
		UID:                bytes.Clone(uid),
		PatchInfo:          bytes.Clone(patchInfo),
		SecurityGeneration: SecurityGenerationFromPatchInfo(patchInfo),
	}
}

// NewDexcom returns a Dexcom transmitter with the given serial.
func NewDexcom(typ Type, serial string) *Sensor {
	return &Sensor{Type: typ, Serial: serial}
}

// TypeFromPatchInfo classifies a Libre sensor by its patch info.
func TypeFromPatchInfo(p []byte) Type {
	if len(p) == 0 {
		return Libre1
	}
	if len(p) > 6 {
		return Libre3
	}
	switch p[0] {
	case 0xdf, 0xa2:
		return Libre1
	case 0xe5, 0xe6:
		return LibreUS14Day
	case 0x70:
		return LibreProH
	case 0x9d, 0xc5, 0xc6:
		return Libre2
	case 0x76, 0x7f:
		if len(p) < 4 {
			return Unknown
		}
		switch {
		case p[3] == 0x02:
			return Libre2US
		case p[3] == 0x04:
			return Libre2CA
		case p[2]>>4 == 7:
			return LibreSense
		}
	}
	return Unknown
}

// SecurityGenerationFromPatchInfo returns the security generation of
// a Libre sensor: 0 for plaintext sensors, 1 for the first encrypted
// generation and 2 for sensors that need an authenticated session.
func SecurityGenerationFromPatchInfo(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	if len(p) > 6 {
		return 1
	}
	switch p[0] {
	case 0xc6, 0x7f:
		return 2
	case 0x9d, 0xc5, 0x76:
		return 1
	}
	return 0
}

// ApplyEncryptedRead records the raw image of an encrypted sensor.
func (s *Sensor) ApplyEncryptedRead(raw []byte) error {
	if len(raw)%BlockSize != 0 {
		return notAligned(len(raw))
	}
	s.EncryptedFRAM = bytes.Clone(raw)
	s.FRAM = bytes.Clone(raw)
	return nil
}

// ApplyFullRead replaces the FRAM image with blocks. If the sensor was
// encrypted and the new image is large enough to be plaintext, it is
// taken as decrypted. Plaintext images update State, Age and MaxLife.
// A misaligned image is rejected without changing s.
func (s *Sensor) ApplyFullRead(blocks []byte) error {
	if len(blocks)%BlockSize != 0 {
		return notAligned(len(blocks))
	}
	s.FRAM = bytes.Clone(blocks)
	if len(s.EncryptedFRAM) != 0 && len(s.FRAM) >= PlainSize {
		s.EncryptedFRAM = nil
	}
	s.Stale = false
	if len(s.EncryptedFRAM) == 0 && len(s.FRAM) >= PlainSize {
		s.decodeFRAM()
	}
	return nil
}

func notAligned(n int) error {
	return &cgm.DecodeError{Op: "fram", Msg: fmt.Sprintf("image of %d bytes is not block aligned", n)}
}

func (s *Sensor) decodeFRAM() {
	s.State = State(s.FRAM[stateOffset])
	if s.State > StateFailure {
		s.State = StateUnknown
	}
	s.Age = int(binary.LittleEndian.Uint16(s.FRAM[ageOffset:]))
	s.MaxLife = int(binary.LittleEndian.Uint16(s.FRAM[bodyEnd+MaxLifeOffset:]))
	if s.MaxLife > 0 && s.Age > s.MaxLife {
		s.Age = s.MaxLife
	}
}

// CheckFRAM validates the header, body and footer checksums of a
// plaintext image.
func (s *Sensor) CheckFRAM() error {
	if err := cgm.Short("fram", len(s.FRAM), PlainSize); err != nil {
		return err
	}
	for _, seg := range []struct {
		name       string
		start, end int
	}{
		{"fram header", 0, headerEnd},
		{"fram body", headerEnd, bodyEnd},
		{"fram footer", bodyEnd, footerEnd},
	} {
		err := codec.CheckLibreCRC(seg.name, s.FRAM[seg.start:seg.end])
		if err != nil {
			return err
		}
	}
	return nil
}

// Failure is a sensor failure report.
type Failure struct {
	Code uint8
	Age  int // minutes, 0 when unknown
}

func (f Failure) String() string {
	at := "an unknown time"
	if f.Age != 0 {
		at = (time.Duration(f.Age) * time.Minute).String()
	}
	return fmt.Sprintf("failure 0x%02x at %s", f.Code, at)
}

// DecodeFailure returns the failure report of a sensor in the failure
// state: the error code in FRAM byte 6 and the age in minutes at the
// time of failure in bytes 7 and 8.
func (s *Sensor) DecodeFailure() (Failure, error) {
	if s.State != StateFailure {
		return Failure{}, fmt.Errorf("sensor state is %s, not failure", s.State)
	}
	age, err := codec.Uint16("failure", s.FRAM, failureOffset+1)
	if err != nil {
		return Failure{}, err
	}
	return Failure{Code: s.FRAM[failureOffset], Age: int(age)}, nil
}

// MaximumLifeOverride sets the maximum life field of a footer segment
// to 0xffff. The segment checksum is left for the caller to repair.
func MaximumLifeOverride(footer []byte) error {
	if err := cgm.Short("footer", len(footer), MaxLifeOffset+2); err != nil {
		return err
	}
	codec.PutUint16(footer, MaxLifeOffset, 0xffff)
	return nil
}

// SetActivation records an activation time reported by the sensor and
// derives the sensor age from it.
func (s *Sensor) SetActivation(activation uint32, now time.Time) {
	s.ActivationTime = activation
	s.LastReadingDate = now
	s.Age = int(now.Sub(time.Unix(int64(activation), 0)) / time.Minute)
	if s.Age < 0 {
		s.Age = 0
	}
	if s.MaxLife > 0 && s.Age > s.MaxLife {
		s.Age = s.MaxLife
	}
}
