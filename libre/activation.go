// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package libre

import (
	"encoding/binary"
	"fmt"

	"tinygo.org/x/bluetooth"

	"github.com/kortschak/cgm"
	"github.com/kortschak/cgm/codec"
)

const (
	activationFiller = 0xa5
	activationOK     = 0x00
	activationFailed = 0x01
	activationSize   = 17
)

// ActivationResponse is a successful Libre 3 activation response.
//
//	0  1 2 3 4 5 6  7 8 9 10 11121314 1516
//	00 BDBDBDBDBDBD PNPNPNPN TTTTTTTT CRCR
type ActivationResponse struct {
	// BDAddress is the Bluetooth address of the sensor.
	BDAddress bluetooth.MAC
	// PIN is the BLE pairing key.
	PIN [4]byte
	// ActivationTime is the activation time in Unix seconds.
	ActivationTime uint32
	CRC            uint16
}

// ActivationError is a Libre 3 activation failure reported by the
// sensor.
type ActivationError struct {
	Code byte
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("libre 3 activation error %#02x", e.Code)
}

// DecodeActivationResponse decodes a Libre 3 activation response.
// Leading 0xa5 filler bytes are ignored. A sensor reported failure is
// returned as an *ActivationError.
func DecodeActivationResponse(b []byte) (ActivationResponse, error) {
	for len(b) != 0 && b[0] == activationFiller {
		b = b[1:]
	}
	switch {
	case len(b) == 2 && b[0] == activationFailed:
		return ActivationResponse{}, &ActivationError{Code: b[1]}
	case len(b) == activationSize && b[0] == activationOK:
		var r ActivationResponse
		// The address is transmitted least significant byte
		// first, the order bluetooth.MAC holds it in.
		copy(r.BDAddress[:], b[1:7])
		copy(r.PIN[:], b[7:11])
		r.ActivationTime = binary.LittleEndian.Uint32(b[11:])
		r.CRC = binary.LittleEndian.Uint16(b[15:])
		if got := codec.LibreCRC(b[1:15]); got != r.CRC {
			return r, &cgm.ChecksumError{Op: "activation response", Want: r.CRC, Got: got}
		}
		return r, nil
	default:
		return ActivationResponse{}, &cgm.DecodeError{Op: "activation response", Msg: fmt.Sprintf("unexpected response %x", b)}
	}
}
