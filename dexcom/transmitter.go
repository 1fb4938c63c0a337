// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dexcom

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kortschak/cgm"
	"github.com/kortschak/cgm/battery"
	"github.com/kortschak/cgm/codec"
	"github.com/kortschak/cgm/glucose"
	"github.com/kortschak/cgm/sensor"
)

// Transport is the radio link to a transmitter.
type Transport interface {
	// Write writes data to the channel's characteristic, waiting
	// for the write acknowledgement when withResponse is true.
	Write(ch Channel, data []byte, withResponse bool) error
	// EnableNotifications subscribes to the channel's
	// notifications.
	EnableNotifications(ch Channel) error
	// Read issues a read of the channel's characteristic. The
	// value is delivered through Transmitter.Deliver.
	Read(ch Channel) error
}

// Merger accepts decoded glucose records. It is satisfied by
// *glucose.History.
type Merger interface {
	Merge(recs ...glucose.Record) int
}

// Option is a Transmitter configuration option.
type Option func(*Transmitter)

// WithLogger sets the log sink of the Transmitter.
func WithLogger(log cgm.Logger) Option {
	return func(t *Transmitter) { t.log = log }
}

// WithSniffing puts the Transmitter in passive mode. A sniffing
// Transmitter decodes traffic but never writes to the transmitter.
func WithSniffing() Option {
	return func(t *Transmitter) { t.sniffing = true }
}

// WithClock sets the time source used to date the activation.
func WithClock(now func() time.Time) Option {
	return func(t *Transmitter) { t.now = now }
}

// WithHistory sets the destination of decoded glucose records.
func WithHistory(h Merger) Option {
	return func(t *Transmitter) { t.history = h }
}

// Transmitter is the session state machine for a Dexcom transmitter
// connection. Inbound traffic is passed to Deliver in the order the
// transport receives it.
type Transmitter struct {
	sensor   *sensor.Sensor
	tr       Transport
	log      cgm.Logger
	now      func() time.Time
	history  Merger
	sniffing bool

	mu            sync.Mutex
	state         State
	opCode        Opcode
	authenticated bool
	bonded        bool
	subscribed    bool
	activation    time.Time
	sessionStart  uint32
	battery       battery.Status
	last          glucose.Record
	buffer        backfillBuffer
}

// NewTransmitter returns a Transmitter for the Dexcom sensor s that
// writes through tr. If no history is provided, records are
// collected in a new glucose.History.
func NewTransmitter(s *sensor.Sensor, tr Transport, opts ...Option) *Transmitter {
	t := &Transmitter{
		sensor: s,
		tr:     tr,
		log:    cgm.Discard,
		now:    time.Now,
		last:   glucose.Record{Value: glucose.NoValue, Trend: glucose.NoTrend, Predicted: glucose.NoValue},
	}
	for _, o := range opts {
		o(t)
	}
	if t.history == nil {
		t.history = &glucose.History{}
	}
	return t
}

// action is a transport request queued while the state lock is held.
type action struct {
	op string
	do func() error
}

// Deliver processes a notification or read value received on ch.
// Malformed frames are reported and leave the session state unchanged
// apart from the last opcode. Transport failures from requests issued
// in response to the frame are returned wrapping cgm.ErrTransport.
func (t *Transmitter) Deliver(data []byte, ch Channel) error {
	t.mu.Lock()
	queue, err := t.deliver(data, ch)
	t.mu.Unlock()

	// Transport calls are made without the lock so that a transport
	// that delivers synchronously cannot deadlock.
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	for _, a := range queue {
		err := a.do()
		if err != nil {
			t.log.Error("transport request failed", "op", a.op, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w: %w", a.op, cgm.ErrTransport, err))
			break
		}
	}
	return errors.Join(errs...)
}

func (t *Transmitter) deliver(data []byte, ch Channel) ([]action, error) {
	if len(data) == 0 {
		return nil, cgm.Short(ch.String(), 0, 1)
	}
	switch ch {
	case Authentication, Control:
		t.opCode = Opcode(data[0])
		t.log.Debug("received opcode", "channel", ch, "opcode", t.opCode, "data", fmt.Sprintf("%x", data))
	}
	switch ch {
	case Authentication:
		return t.handleAuth(data)
	case Control:
		return nil, t.handleControl(data)
	case Communication:
		t.log.Info("communication", "data", fmt.Sprintf("%x", data))
		return nil, nil
	case Backfill:
		idx := t.buffer.add(data)
		t.log.Debug("backfill packet", "index", idx, "packets", t.buffer.packets, "buffered", t.buffer.len())
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid channel: %d", ch)
	}
}

func (t *Transmitter) handleAuth(data []byte) ([]action, error) {
	switch t.opCode {
	case AuthRequestRx:
		if err := cgm.Short("auth request response", len(data), 17); err != nil {
			return nil, err
		}
		var challenge [8]byte
		copy(challenge[:], data[9:17])
		t.log.Info("auth challenge", "token_hash", fmt.Sprintf("%x", data[1:9]), "challenge", fmt.Sprintf("%x", challenge))
		if t.state < Authenticating {
			t.state = Authenticating
		}
		if t.sniffing {
			return nil, nil
		}
		resp := ChallengeResponse(t.sensor.Serial, challenge)
		t.log.Debug("challenge response", "serial", t.sensor.Serial, "response", fmt.Sprintf("%x", resp))
		return []action{{
			op: "challenge response",
			do: func() error { return t.tr.Write(Authentication, resp, true) },
		}}, nil

	case AuthChallengeRx:
		if err := cgm.Short("auth challenge response", len(data), 3); err != nil {
			return nil, err
		}
		// Once true these stay true until the session is closed.
		t.authenticated = t.authenticated || data[1] == 1
		t.bonded = t.bonded || (t.authenticated && data[2] == 1)
		t.log.Info("auth status", "authenticated", t.authenticated, "bonded", t.bonded)
		switch {
		case t.bonded && t.state < Bonded:
			t.state = Bonded
		case t.authenticated && t.state < Authenticated:
			t.state = Authenticated
		}
		if !t.bonded || t.subscribed {
			return nil, nil
		}
		t.subscribed = true
		return []action{
			{op: "enable communication", do: func() error { return t.tr.EnableNotifications(Communication) }},
			{op: "read communication", do: func() error { return t.tr.Read(Communication) }},
			{op: "enable control", do: func() error { return t.tr.EnableNotifications(Control) }},
			{op: "enable backfill", do: func() error { return t.tr.EnableNotifications(Backfill) }},
		}, nil

	default:
		t.log.Info("unhandled auth opcode", "opcode", t.opCode)
		return nil, nil
	}
}

func (t *Transmitter) handleControl(data []byte) error {
	if t.bonded && t.state == Bonded {
		t.state = Streaming
	}
	switch t.opCode {
	case TransmitterTimeRx:
		var m TimeMessage
		if err := m.UnmarshalBinary(data); err != nil {
			return err
		}
		t.log.Info("transmitter time", "status", m.Status, "age", time.Duration(m.Age)*time.Second, "session_start", m.SessionStart, "valid_crc", m.Valid)
		if !m.Valid {
			return checksumError("transmitter time", data[:10], m.CRC)
		}
		if t.activation.IsZero() {
			t.activation = t.now().Add(-time.Duration(m.Age) * time.Second)
			t.sensor.SetActivation(uint32(t.activation.Unix()), t.now())
			t.log.Info("activation date", "date", t.activation)
		}
		t.sessionStart = m.SessionStart
		return nil

	case GlucoseG6Rx, GlucoseRx, GlucoseG6Tx:
		return t.handleGlucose(data)

	case GlucoseBackfillRx:
		// The stream is discarded whatever the outcome once the
		// header is readable.
		var hdr BackfillHeader
		if err := hdr.UnmarshalBinary(data); err != nil {
			return err
		}
		buf := t.buffer.data
		t.buffer.reset()
		t.log.Info("backfill", "status", hdr.Status, "backfill_status", hdr.BackfillStatus, "identifier", hdr.Identifier,
			"start", hdr.Start, "end", hdr.End, "length", hdr.BufferLength, "buffer_crc", hdr.BufferCRC, "computed_crc", codec.XModem(buf))
		if !hdr.Valid {
			return checksumError("backfill header", data[:18], hdr.CRC)
		}
		recs, err := G6Backfill(buf, t.activation)
		t.merge(recs)
		return err

	case BackfillFinished:
		buf := t.buffer.data
		t.buffer.reset()
		recs, err := G7Backfill(buf, t.activation)
		t.merge(recs)
		return err

	case BatteryStatusRx:
		var m battery.Status
		if err := m.UnmarshalBinary(data); err != nil {
			return err
		}
		t.log.Info("battery status", "status", m.Status, "voltage_a", m.VoltageA, "voltage_b", m.VoltageB,
			"resistance", m.Resistance, "runtime", m.Runtime, "temperature", m.Temperature, "valid_crc", m.Valid)
		if m.Valid {
			t.battery = m
		}
		return nil

	case FirmwareVersionRx, TransmitterVersionRx, CalibrationDataRx, SessionStartRx, SessionStopRx, KeepAliveRx:
		t.log.Info("control response", "opcode", t.opCode, "data", fmt.Sprintf("%x", data))
		return nil

	default:
		t.log.Info("unhandled control opcode", "opcode", t.opCode, "data", fmt.Sprintf("%x", data))
		return nil
	}
}

func (t *Transmitter) handleGlucose(data []byte) error {
	var rec glucose.Record
	switch t.sensor.Type {
	case sensor.DexcomG7:
		var m G7GlucoseMessage
		if err := m.UnmarshalBinary(data); err != nil {
			return err
		}
		rec = m.Record(t.activation)
		t.log.Info("glucose", "status", m.Status, "message_timestamp", m.MessageTimestamp, "sequence", m.Sequence,
			"age", m.Age, "glucose", m.Glucose, "state", m.State, "trend", m.Trend, "predicted", m.Predicted, "calibration", m.Calibration)
	default:
		var m GlucoseMessage
		if err := m.UnmarshalBinary(data); err != nil {
			return err
		}
		rec = m.Record(t.activation)
		t.log.Info("glucose", "message", m)
		if !m.Valid {
			return checksumError("glucose", data[:14], m.CRC)
		}
	}
	if rec.HasValue() {
		t.last = rec
		t.sensor.LastReadingDate = t.now()
	}
	t.merge([]glucose.Record{rec})
	return nil
}

func (t *Transmitter) merge(recs []glucose.Record) {
	if len(recs) == 0 {
		return
	}
	n := t.history.Merge(recs...)
	t.log.Info("merged glucose", "records", len(recs), "added", n)
}

func checksumError(op string, payload []byte, carried uint16) error {
	return &cgm.ChecksumError{Op: op, Want: carried, Got: codec.XModem(payload)}
}

// Disconnect closes the session. The backfill buffer is discarded,
// authentication and bonding are forgotten and the activation date
// will be taken from the next time response.
func (t *Transmitter) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = Disconnected
	t.opCode = Unknown
	t.authenticated = false
	t.bonded = false
	t.subscribed = false
	t.activation = time.Time{}
	t.buffer.reset()
}

// State returns the session state.
func (t *Transmitter) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Authenticated returns whether the transmitter accepted the challenge
// response.
func (t *Transmitter) Authenticated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.authenticated
}

// Bonded returns whether the transmitter reports a bond.
func (t *Transmitter) Bonded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bonded
}

// Opcode returns the opcode of the last authentication or control
// message.
func (t *Transmitter) Opcode() Opcode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opCode
}

// Activation returns the activation date, or the zero time if no
// time response has been received in this session.
func (t *Transmitter) Activation() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activation
}

// SessionStart returns the session start time in seconds since
// activation from the last time response.
func (t *Transmitter) SessionStart() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionStart
}

// Battery returns the last valid battery status.
func (t *Transmitter) Battery() battery.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.battery
}

// Last returns the most recent reading with a glucose value.
func (t *Transmitter) Last() glucose.Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Buffered returns the number of backfill bytes awaiting a terminal
// opcode.
func (t *Transmitter) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buffer.len()
}

// Request writes a request to the control channel. Requests are
// dropped when sniffing.
func (t *Transmitter) Request(msg []byte) error {
	if len(msg) == 0 {
		return cgm.Short("control request", 0, 1)
	}
	if t.sniffing {
		return nil
	}
	err := t.tr.Write(Control, msg, true)
	if err != nil {
		return fmt.Errorf("control request %s: %w: %w", Opcode(msg[0]), cgm.ErrTransport, err)
	}
	return nil
}
