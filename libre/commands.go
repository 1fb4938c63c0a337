// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package libre

import (
	"encoding/binary"

	"github.com/kortschak/cgm"
	"github.com/kortschak/cgm/sensor"
)

// Command codes.
const (
	CodeActivate     = 0xa0
	CodeGetPatchInfo = 0xa1
	CodeLock         = 0xa2
	CodeReadRaw      = 0xa3
	CodeUnlock       = 0xa4
	CodeActivate3    = 0xa8
	CodeReadBlock    = 0xb0
	CodeReadBlocks   = 0xb3
)

// Libre 2 subcommands of CodeGetPatchInfo.
const (
	SubUnlock     = 0x1a
	SubActivate   = 0x1b
	SubReadBlocks = 0x21
)

var (
	// backdoor opens the Libre 1 raw memory and activation
	// commands.
	backdoor = []byte{0xc2, 0xad, 0x75, 0x21}
	// writeKey opens and closes FRAM for writing.
	writeKey = []byte{0xde, 0xad, 0xbe, 0xef}
)

// libre2Secret is the second argument of the Libre 2 parameter
// function for the unlock and activation commands.
const libre2Secret = 0x1b6a

// GetPatchInfo returns the patch info command.
func GetPatchInfo() Command {
	return Command{Code: CodeGetPatchInfo, Description: "get patch info"}
}

// UnlockCommand returns the command that opens the FRAM of an
// encrypted sensor.
func UnlockCommand(s *sensor.Sensor) (Command, error) {
	p, err := Libre2Parameter(s.UID, SubUnlock, libre2Secret)
	if err != nil {
		return Command{}, err
	}
	return Command{
		Code:        CodeGetPatchInfo,
		Params:      append([]byte{SubUnlock}, p[:]...),
		Description: "unlock",
	}, nil
}

// ActivationCommand returns the activation command for the sensor.
func ActivationCommand(s *sensor.Sensor) (Command, error) {
	switch {
	case s.Type == sensor.Libre1:
		return Command{Code: CodeActivate, Params: backdoor, Description: "activate"}, nil
	case isLibre2(s.Type):
		p, err := Libre2Parameter(s.UID, SubActivate, libre2Secret)
		if err != nil {
			return Command{}, err
		}
		return Command{
			Code:        CodeActivate,
			Params:      append([]byte{SubActivate}, p[:]...),
			Description: "activate",
		}, nil
	case s.Type == sensor.Libre3:
		if len(s.ActivationParams) == 0 {
			return Command{}, &cgm.DecodeError{Op: "activate", Msg: "missing libre 3 activation parameters"}
		}
		return Command{Code: CodeActivate3, Params: s.ActivationParams, Description: "activate"}, nil
	default:
		return Command{}, unsupported("activate", s)
	}
}

func isLibre2(t sensor.Type) bool {
	switch t {
	case sensor.Libre2, sensor.Libre2US, sensor.Libre2CA, sensor.LibreSense:
		return true
	}
	return false
}

func readRawCommand(address, words int) Command {
	params := append(append([]byte(nil), backdoor...), byte(address), byte(address>>8), byte(words))
	return Command{Code: CodeReadRaw, Params: params, Description: "read raw"}
}

func readBlocksCommand(s *sensor.Sensor, first, count int) (Command, error) {
	if s.SecurityGeneration > 1 {
		if first > 0xff {
			return Command{}, &cgm.DecodeError{Op: "read blocks", Msg: "block beyond single byte address range"}
		}
		p, err := Libre2Parameter(s.UID, SubReadBlocks, libre2Secret)
		if err != nil {
			return Command{}, err
		}
		params := append([]byte{SubReadBlocks, byte(first), byte(count - 1)}, p[:]...)
		return Command{Code: CodeGetPatchInfo, Params: params, Description: "read blocks"}, nil
	}
	var blk [2]byte
	binary.LittleEndian.PutUint16(blk[:], uint16(first))
	if count == 1 {
		return Command{Code: CodeReadBlock, Params: blk[:], Description: "read block"}, nil
	}
	return Command{Code: CodeReadBlocks, Params: append(blk[:], byte(count-1)), Description: "read blocks"}, nil
}

// Libre2Parameter returns the UID keyed four byte argument that the
// Libre 2 family requires with subcommand x.
func Libre2Parameter(uid []byte, x, y uint16) ([4]byte, error) {
	if err := cgm.Short("libre 2 parameter", len(uid), 6); err != nil {
		return [4]byte{}, err
	}
	k := processCrypto(prepareVariables(uid, x, y))
	r1 := k[0] ^ 0x4163
	r2 := k[1] ^ 0x4344
	return [4]byte{byte(r1), byte(r1 >> 8), byte(r2), byte(r2 >> 8)}, nil
}

var libre2Key = [4]uint16{0xa0c5, 0x6860, 0x0000, 0x14c6}

func prepareVariables(uid []byte, x, y uint16) [4]uint16 {
	return [4]uint16{
		binary.LittleEndian.Uint16(uid[4:]) + x + y,
		binary.LittleEndian.Uint16(uid[2:]) + libre2Key[2],
		binary.LittleEndian.Uint16(uid[0:]) + x*2,
		0x241a ^ libre2Key[3],
	}
}

func processCrypto(in [4]uint16) [4]uint16 {
	op := func(v uint16) uint16 {
		r := v >> 2
		if v&1 != 0 {
			r ^= libre2Key[1]
		}
		if v&2 != 0 {
			r ^= libre2Key[0]
		}
		return r
	}
	r0 := op(in[0]) ^ in[3]
	r1 := op(r0) ^ in[2]
	r2 := op(r1) ^ in[1]
	r3 := op(r2) ^ in[0]
	r4 := op(r3)
	r5 := op(r4 ^ r0)
	r6 := op(r5 ^ r1)
	r7 := op(r6 ^ r2)
	return [4]uint16{r3 ^ r7, r2 ^ r6, r1 ^ r5, r0 ^ r4}
}
