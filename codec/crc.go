// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package codec implements the byte level primitives shared by the
// Dexcom and Libre protocols: little-endian field access, the two
// CRC-16 variants the vendors use and the AES challenge response.
package codec

import (
	"encoding/binary"

	"github.com/kortschak/cgm"
)

const crcPoly = 0x1021

// XModem returns the CRC-16/XMODEM checksum of b: polynomial 0x1021,
// initial value 0, MSB first and no final XOR. Dexcom frames carry it
// little-endian in their last two bytes.
func XModem(b []byte) uint16 {
	var crc uint16
	for _, v := range b {
		crc ^= uint16(v) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPoly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// libreTable is the reflected CCITT table used by the Libre FRAM CRC.
var libreTable = func() (t [256]uint16) {
	const reflected = 0x8408
	for i := range t {
		crc := uint16(i)
		for range 8 {
			if crc&1 != 0 {
				crc = crc>>1 ^ reflected
			} else {
				crc >>= 1
			}
		}
		t[i] = crc
	}
	return t
}()

// LibreCRC returns the checksum guarding Libre FRAM segments and the
// Libre 3 activation response. It is the reflected CCITT CRC seeded
// with 0xffff with the bit order of the result reversed. The value is
// stored little-endian ahead of the bytes it covers.
func LibreCRC(b []byte) uint16 {
	crc := uint16(0xffff)
	for _, v := range b {
		crc = crc>>8 ^ libreTable[byte(crc)^v]
	}
	var rev uint16
	for range 16 {
		rev = rev<<1 | crc&1
		crc >>= 1
	}
	return rev
}

// CheckLibreCRC validates a Libre segment: a little-endian CRC in the
// first two bytes followed by the bytes it protects.
func CheckLibreCRC(op string, seg []byte) error {
	if err := cgm.Short(op, len(seg), 3); err != nil {
		return err
	}
	want := binary.LittleEndian.Uint16(seg)
	got := LibreCRC(seg[2:])
	if want != got {
		return &cgm.ChecksumError{Op: op, Want: want, Got: got}
	}
	return nil
}

// PatchLibreCRC recomputes the CRC of seg over seg[2:] and stores it
// in seg[:2], returning the new value.
func PatchLibreCRC(seg []byte) uint16 {
	crc := LibreCRC(seg[2:])
	binary.LittleEndian.PutUint16(seg, crc)
	return crc
}

// Trailer splits a Dexcom frame into its payload and trailing
// little-endian XModem CRC and reports whether the CRC holds. Frames
// shorter than three bytes have no payload to protect and are reported
// invalid.
func Trailer(frame []byte) (payload []byte, crc uint16, ok bool) {
	if len(frame) < 3 {
		return frame, 0, false
	}
	n := len(frame) - 2
	payload = frame[:n]
	crc = binary.LittleEndian.Uint16(frame[n:])
	return payload, crc, XModem(payload) == crc
}

// AppendXModem appends the little-endian XModem CRC of b to b.
func AppendXModem(b []byte) []byte {
	return binary.LittleEndian.AppendUint16(b, XModem(b))
}
