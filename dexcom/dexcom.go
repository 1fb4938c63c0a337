// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dexcom implements the Dexcom G6, G7 and ONE transmitter
// Bluetooth protocol: the authentication handshake, telemetry,
// glucose notifications and backfill stream reassembly.
//
// The protocol is undocumented. Message layouts follow the community
// implementations in [CGMBLEKit], [G7SensorKit] and [xDrip].
//
// [CGMBLEKit]: https://github.com/LoopKit/CGMBLEKit
// [G7SensorKit]: https://github.com/LoopKit/G7SensorKit
// [xDrip]: https://github.com/NightscoutFoundation/xDrip
package dexcom

import (
	"fmt"

	"tinygo.org/x/bluetooth"
)

// Service and characteristic identifiers.
const (
	AdvertisementID  = "febc"
	ServiceID        = "f8083532-849e-531c-c594-30f1f86a4ea5"
	CommunicationID  = "f8083533-849e-531c-c594-30f1f86a4ea5"
	ControlID        = "f8083534-849e-531c-c594-30f1f86a4ea5"
	AuthenticationID = "f8083535-849e-531c-c594-30f1f86a4ea5"
	BackfillID       = "f8083536-849e-531c-c594-30f1f86a4ea5"
)

var (
	advertisement = must(bluetooth.ParseUUID(AdvertisementID))
	dataService   = must(bluetooth.ParseUUID(ServiceID))

	channelUUIDs = [...]bluetooth.UUID{
		Authentication: must(bluetooth.ParseUUID(AuthenticationID)),
		Control:        must(bluetooth.ParseUUID(ControlID)),
		Communication:  must(bluetooth.ParseUUID(CommunicationID)),
		Backfill:       must(bluetooth.ParseUUID(BackfillID)),
	}
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// Channel is a transmitter characteristic carrying protocol traffic.
type Channel uint8

//go:generate go tool golang.org/x/tools/cmd/stringer -type Channel
const (
	Authentication Channel = iota
	Control
	Communication
	Backfill

	numChannels = iota
)

// UUID returns the characteristic UUID of the channel.
func (c Channel) UUID() bluetooth.UUID {
	if c >= numChannels {
		return bluetooth.UUID{}
	}
	return channelUUIDs[c]
}

// ChannelFor returns the channel for a characteristic UUID.
func ChannelFor(id bluetooth.UUID) (Channel, bool) {
	for c, u := range channelUUIDs {
		if u == id {
			return Channel(c), true
		}
	}
	return 0, false
}

// IsTransmitter returns whether a scan result advertises the Dexcom
// service.
func IsTransmitter(found bluetooth.ScanResult) bool {
	return found.HasServiceUUID(advertisement)
}

// State is the session state of a transmitter connection.
type State uint8

//go:generate go tool golang.org/x/tools/cmd/stringer -type State
const (
	Disconnected State = iota
	Authenticating
	Authenticated
	Bonded
	Streaming
)

// Opcode is the first byte of a message on the authentication and
// control channels.
type Opcode uint8

// Authentication opcodes.
const (
	Unknown         Opcode = 0x00
	AuthRequestTx   Opcode = 0x01
	AuthRequest2Tx  Opcode = 0x02 // Dexcom ONE
	AuthRequestRx   Opcode = 0x03
	AuthChallengeTx Opcode = 0x04
	AuthChallengeRx Opcode = 0x05
	KeepAlive       Opcode = 0x06
	BondRequest     Opcode = 0x07
	PairRequestRx   Opcode = 0x08
)

// Control opcodes.
const (
	DisconnectTx                 Opcode = 0x09
	SetAdvertisementParametersRx Opcode = 0x1c
	FirmwareVersionTx            Opcode = 0x20
	FirmwareVersionRx            Opcode = 0x21
	BatteryStatusTx              Opcode = 0x22
	BatteryStatusRx              Opcode = 0x23
	TransmitterTimeTx            Opcode = 0x24
	TransmitterTimeRx            Opcode = 0x25
	SessionStartTx               Opcode = 0x26
	SessionStartRx               Opcode = 0x27
	SessionStopTx                Opcode = 0x28
	SessionStopRx                Opcode = 0x29
	SensorDataTx                 Opcode = 0x2e
	SensorDataRx                 Opcode = 0x2f
	GlucoseTx                    Opcode = 0x30
	GlucoseRx                    Opcode = 0x31
	CalibrationDataTx            Opcode = 0x32
	CalibrationDataRx            Opcode = 0x33
	CalibrateGlucoseTx           Opcode = 0x34
	CalibrateGlucoseRx           Opcode = 0x35
	GlucoseHistoryTx             Opcode = 0x3e
	ResetTx                      Opcode = 0x42
	ResetRx                      Opcode = 0x43
	TransmitterVersionTx         Opcode = 0x4a
	TransmitterVersionRx         Opcode = 0x4b
	GlucoseG6Tx                  Opcode = 0x4e // also G7
	GlucoseG6Rx                  Opcode = 0x4f
	GlucoseBackfillTx            Opcode = 0x50
	GlucoseBackfillRx            Opcode = 0x51
	BackfillFinished             Opcode = 0x59 // G7
	KeepAliveRx                  Opcode = 0xff
)

var opcodeNames = map[Opcode]string{
	Unknown:                      "unknown",
	AuthRequestTx:                "authRequestTx",
	AuthRequest2Tx:               "authRequest2Tx",
	AuthRequestRx:                "authRequestRx",
	AuthChallengeTx:              "authChallengeTx",
	AuthChallengeRx:              "authChallengeRx",
	KeepAlive:                    "keepAlive",
	BondRequest:                  "bondRequest",
	PairRequestRx:                "pairRequestRx",
	DisconnectTx:                 "disconnectTx",
	SetAdvertisementParametersRx: "setAdvertisementParametersRx",
	FirmwareVersionTx:            "firmwareVersionTx",
	FirmwareVersionRx:            "firmwareVersionRx",
	BatteryStatusTx:              "batteryStatusTx",
	BatteryStatusRx:              "batteryStatusRx",
	TransmitterTimeTx:            "transmitterTimeTx",
	TransmitterTimeRx:            "transmitterTimeRx",
	SessionStartTx:               "sessionStartTx",
	SessionStartRx:               "sessionStartRx",
	SessionStopTx:                "sessionStopTx",
	SessionStopRx:                "sessionStopRx",
	SensorDataTx:                 "sensorDataTx",
	SensorDataRx:                 "sensorDataRx",
	GlucoseTx:                    "glucoseTx",
	GlucoseRx:                    "glucoseRx",
	CalibrationDataTx:            "calibrationDataTx",
	CalibrationDataRx:            "calibrationDataRx",
	CalibrateGlucoseTx:           "calibrateGlucoseTx",
	CalibrateGlucoseRx:           "calibrateGlucoseRx",
	GlucoseHistoryTx:             "glucoseHistoryTx",
	ResetTx:                      "resetTx",
	ResetRx:                      "resetRx",
	TransmitterVersionTx:         "transmitterVersionTx",
	TransmitterVersionRx:         "transmitterVersionRx",
	GlucoseG6Tx:                  "glucoseG6Tx",
	GlucoseG6Rx:                  "glucoseG6Rx",
	GlucoseBackfillTx:            "glucoseBackfillTx",
	GlucoseBackfillRx:            "glucoseBackfillRx",
	BackfillFinished:             "backfillFinished",
	KeepAliveRx:                  "keepAliveRx",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return fmt.Sprintf("Opcode(%#02x)", uint8(op))
}

// AlgorithmState is the sensor calibration and health status that
// accompanies each glucose reading.
type AlgorithmState uint8

const (
	StateNone AlgorithmState = iota
	SessionStopped
	SensorWarmup
	ExcessNoise
	FirstOfTwoBGsNeeded
	SecondOfTwoBGsNeeded
	Okay
	NeedsCalibration
	CalibrationError1
	CalibrationError2
	CalibrationLinearityFitFailure
	SensorFailedDueToCountsAberration
	SensorFailedDueToResidualAberration
	OutOfCalibrationDueToOutlier
	OutlierCalibrationRequest
	SessionExpired
	SessionFailedDueToUnrecoverableError
	SessionFailedDueToTransmitterError
	TemporarySensorIssue
	SensorFailedDueToProgressiveSensorDecline
	SensorFailedDueToHighCountsAberration
	SensorFailedDueToLowCountsAberration
	SensorFailedDueToRestart
)

var algorithmStates = [...]string{
	StateNone:                                 "none",
	SessionStopped:                            "session stopped",
	SensorWarmup:                              "sensor warmup",
	ExcessNoise:                               "excess noise",
	FirstOfTwoBGsNeeded:                       "first of two BGs needed",
	SecondOfTwoBGsNeeded:                      "second of two BGs needed",
	Okay:                                      "OK / calibrated",
	NeedsCalibration:                          "needs calibration",
	CalibrationError1:                         "calibration error 1",
	CalibrationError2:                         "calibration error 2",
	CalibrationLinearityFitFailure:            "calibration linearity fit failure",
	SensorFailedDueToCountsAberration:         "sensor failed due to counts aberration",
	SensorFailedDueToResidualAberration:       "sensor failed due to residual aberration",
	OutOfCalibrationDueToOutlier:              "out of calibration due to outlier",
	OutlierCalibrationRequest:                 "outlier calibration request",
	SessionExpired:                            "session expired",
	SessionFailedDueToUnrecoverableError:      "session failed due to unrecoverable error",
	SessionFailedDueToTransmitterError:        "session failed due to transmitter error",
	TemporarySensorIssue:                      "temporary sensor issue",
	SensorFailedDueToProgressiveSensorDecline: "sensor failed due to progressive sensor decline",
	SensorFailedDueToHighCountsAberration:     "sensor failed due to high counts aberration",
	SensorFailedDueToLowCountsAberration:      "sensor failed due to low counts aberration",
	SensorFailedDueToRestart:                  "sensor failed due to restart",
}

func (s AlgorithmState) String() string {
	if int(s) < len(algorithmStates) {
		return algorithmStates[s]
	}
	return fmt.Sprintf("unknown (%#02x)", uint8(s))
}
