// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dexcom

import (
	"encoding/binary"

	"github.com/kortschak/cgm/codec"
	"github.com/kortschak/cgm/sensor"
)

// AuthRequest returns the message that opens the authentication
// handshake with a single use token. Dexcom ONE transmitters use the
// second form of the request.
func AuthRequest(typ sensor.Type, token [8]byte) []byte {
	op := AuthRequestTx
	if typ == sensor.DexcomONE {
		op = AuthRequest2Tx
	}
	msg := make([]byte, 0, 10)
	msg = append(msg, byte(op))
	msg = append(msg, token[:]...)
	return append(msg, 0x02)
}

// ChallengeResponse returns the reply to an authentication challenge
// for the transmitter with the given serial.
func ChallengeResponse(serial string, challenge [8]byte) []byte {
	resp := codec.ChallengeResponse(serial, challenge)
	return append([]byte{byte(AuthChallengeTx)}, resp[:]...)
}

// KeepAliveRequest asks the transmitter to hold the connection for
// the given number of seconds.
func KeepAliveRequest(seconds uint8) []byte {
	return []byte{byte(KeepAlive), seconds}
}

// BondRequestMessage asks the transmitter to start Bluetooth bonding.
func BondRequestMessage() []byte {
	return []byte{byte(BondRequest)}
}

// DisconnectRequest asks the transmitter to close the connection.
func DisconnectRequest() []byte {
	return []byte{byte(DisconnectTx)}
}

// TransmitterTimeRequest returns a transmitter time request.
func TransmitterTimeRequest() []byte {
	return codec.AppendXModem([]byte{byte(TransmitterTimeTx)})
}

// GlucoseRequest returns a glucose request for the transmitter type.
func GlucoseRequest(typ sensor.Type) []byte {
	switch typ {
	case sensor.DexcomG6, sensor.DexcomONE, sensor.DexcomG7:
		return codec.AppendXModem([]byte{byte(GlucoseG6Tx)})
	default:
		return codec.AppendXModem([]byte{byte(GlucoseTx)})
	}
}

// BackfillRequest asks a G6 transmitter for the readings between
// start and end, in seconds since activation. The readings arrive on
// the backfill channel and the stream is closed by a backfill
// response on the control channel.
func BackfillRequest(start, end uint32) []byte {
	msg := []byte{byte(GlucoseBackfillTx), 0x05, 0x02, 0x00}
	msg = binary.LittleEndian.AppendUint32(msg, start)
	msg = binary.LittleEndian.AppendUint32(msg, end)
	msg = append(msg, make([]byte, 6)...) // length and buffer CRC
	return codec.AppendXModem(msg)
}
