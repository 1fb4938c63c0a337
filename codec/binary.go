// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codec

import (
	"encoding/binary"

	"github.com/kortschak/cgm"
)

// Uint16 returns the little-endian uint16 at b[off:off+2].
func Uint16(op string, b []byte, off int) (uint16, error) {
	if off < 0 {
		return 0, &cgm.DecodeError{Op: op, Msg: "negative offset"}
	}
	if err := cgm.Short(op, len(b), off+2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[off:]), nil
}

// PutUint16 writes v little-endian into b[off:off+2].
func PutUint16(b []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(b[off:], v)
}

// LE16 returns v as a two byte little-endian slice.
func LE16(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}
