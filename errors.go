// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cgm holds the error kinds and event sink shared by the
// Dexcom BLE and Libre NFC protocol packages.
//
// Protocol work lives in the subpackages: [github.com/kortschak/cgm/dexcom]
// drives the transmitter opcode state machine, [github.com/kortschak/cgm/libre]
// drives the NFC command layer, and [github.com/kortschak/cgm/glucose]
// merges the decoded readings into a history.
package cgm

import (
	"errors"
	"fmt"
)

// Error kinds. None of these are fatal to a session; a single bad
// frame is logged and skipped.
var (
	// ErrUnsupportedCommand is returned when an operation is not
	// supported by the sensor type or security generation.
	ErrUnsupportedCommand = errors.New("command not supported")

	// ErrTransport wraps failures of the underlying radio or tag
	// transport. Retrying is the caller's decision.
	ErrTransport = errors.New("transport failure")

	// ErrChecksum is the kind of all CRC validation failures.
	ErrChecksum = errors.New("checksum mismatch")

	// ErrDecode is the kind of all malformed or short payloads.
	ErrDecode = errors.New("decode error")

	// ErrStateInconsistency is returned when a multi-step memory
	// patch aborted part way. The tag must be re-read before its
	// memory image can be trusted.
	ErrStateInconsistency = errors.New("state inconsistency")
)

// ChecksumError reports a CRC mismatch on a received or patched frame.
type ChecksumError struct {
	Op   string
	Want uint16 // Value carried by the frame.
	Got  uint16 // Value computed over the frame.
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%s: checksum mismatch: frame carries %#04x, computed %#04x", e.Op, e.Want, e.Got)
}

func (e *ChecksumError) Is(target error) bool { return target == ErrChecksum }

// DecodeError reports a payload too short or otherwise malformed for
// the operation.
type DecodeError struct {
	Op   string
	Need int
	Have int
	Msg  string
}

func (e *DecodeError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: short payload: need %d bytes, have %d", e.Op, e.Need, e.Have)
}

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Short returns a DecodeError if have is less than need.
func Short(op string, have, need int) error {
	if have < need {
		return &DecodeError{Op: op, Need: need, Have: have}
	}
	return nil
}
