// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dexcom

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/kortschak/cgm"
	"github.com/kortschak/cgm/codec"
	"github.com/kortschak/cgm/glucose"
	"github.com/kortschak/cgm/sensor"
)

type call struct {
	op           string
	ch           Channel
	data         []byte
	withResponse bool
}

// mockTransport records the requests made by a Transmitter.
type mockTransport struct {
	calls []call
	err   error
}

func (m *mockTransport) Write(ch Channel, data []byte, withResponse bool) error {
	m.calls = append(m.calls, call{op: "write", ch: ch, data: bytes.Clone(data), withResponse: withResponse})
	return m.err
}

func (m *mockTransport) EnableNotifications(ch Channel) error {
	m.calls = append(m.calls, call{op: "notify", ch: ch})
	return m.err
}

func (m *mockTransport) Read(ch Channel) error {
	m.calls = append(m.calls, call{op: "read", ch: ch})
	return m.err
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestTransmitter(typ sensor.Type, opts ...Option) (*Transmitter, *mockTransport, *glucose.History) {
	tr := &mockTransport{}
	h := &glucose.History{}
	opts = append([]Option{WithClock(func() time.Time { return testNow }), WithHistory(h)}, opts...)
	return NewTransmitter(sensor.NewDexcom(typ, "8G1234"), tr, opts...), tr, h
}

func authRequestRx() []byte {
	msg := []byte{byte(AuthRequestRx)}
	msg = append(msg, 0xa0, 0xa1, 0xa2, 0xa3, 0xa4, 0xa5, 0xa6, 0xa7) // token hash
	msg = append(msg, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef) // challenge
	return msg
}

func timeRx(age, sessionStart uint32) []byte {
	msg := []byte{byte(TransmitterTimeRx), 0x00}
	msg = binary.LittleEndian.AppendUint32(msg, age)
	msg = binary.LittleEndian.AppendUint32(msg, sessionStart)
	return codec.AppendXModem(msg)
}

func g6GlucoseRx(seq, ts uint32, value uint16, state AlgorithmState, trend int8) []byte {
	msg := []byte{byte(GlucoseG6Rx), 0x00}
	msg = binary.LittleEndian.AppendUint32(msg, seq)
	msg = binary.LittleEndian.AppendUint32(msg, ts)
	msg = binary.LittleEndian.AppendUint16(msg, value)
	msg = append(msg, byte(state), byte(trend))
	return codec.AppendXModem(msg)
}

func TestAuthHandshake(t *testing.T) {
	tx, tr, _ := newTestTransmitter(sensor.DexcomG6)

	err := tx.Deliver(authRequestRx(), Authentication)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []call{{
		op:           "write",
		ch:           Authentication,
		data:         []byte{0x04, 0x63, 0xec, 0x89, 0xeb, 0x6d, 0xd2, 0xed, 0x41},
		withResponse: true,
	}}
	if !reflect.DeepEqual(tr.calls, want) {
		t.Fatalf("unexpected challenge response:\ngot: %+v\nwant:%+v", tr.calls, want)
	}
	if got := tx.State(); got != Authenticating {
		t.Errorf("unexpected state: got:%s want:%s", got, Authenticating)
	}
	if got := tx.Opcode(); got != AuthRequestRx {
		t.Errorf("unexpected opcode: got:%s want:%s", got, AuthRequestRx)
	}

	tr.calls = nil
	err = tx.Deliver([]byte{byte(AuthChallengeRx), 0x01, 0x01}, Authentication)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want = []call{
		{op: "notify", ch: Communication},
		{op: "read", ch: Communication},
		{op: "notify", ch: Control},
		{op: "notify", ch: Backfill},
	}
	if !reflect.DeepEqual(tr.calls, want) {
		t.Fatalf("unexpected subscription:\ngot: %+v\nwant:%+v", tr.calls, want)
	}
	if !tx.Authenticated() || !tx.Bonded() {
		t.Errorf("expected authenticated and bonded: got:%t %t", tx.Authenticated(), tx.Bonded())
	}
	if got := tx.State(); got != Bonded {
		t.Errorf("unexpected state: got:%s want:%s", got, Bonded)
	}

	// Subscription is one-shot and the flags are monotonic.
	tr.calls = nil
	for _, msg := range [][]byte{{byte(AuthChallengeRx), 0x01, 0x01}, {byte(AuthChallengeRx), 0x00, 0x02}} {
		err = tx.Deliver(msg, Authentication)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(tr.calls) != 0 {
		t.Errorf("unexpected repeated requests: %+v", tr.calls)
	}
	if !tx.Authenticated() || !tx.Bonded() {
		t.Errorf("expected flags to remain set: got:%t %t", tx.Authenticated(), tx.Bonded())
	}

	err = tx.Deliver(timeRx(3600, 100), Control)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := tx.State(); got != Streaming {
		t.Errorf("unexpected state: got:%s want:%s", got, Streaming)
	}

	tx.Disconnect()
	if tx.Authenticated() || tx.Bonded() || tx.State() != Disconnected || !tx.Activation().IsZero() {
		t.Errorf("session not reset: authenticated=%t bonded=%t state=%s activation=%v",
			tx.Authenticated(), tx.Bonded(), tx.State(), tx.Activation())
	}
}

func TestAuthenticatedWithoutBond(t *testing.T) {
	tx, tr, _ := newTestTransmitter(sensor.DexcomONE)
	err := tx.Deliver([]byte{byte(AuthChallengeRx), 0x01, 0x02}, Authentication)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.calls) != 0 {
		t.Errorf("unexpected requests: %+v", tr.calls)
	}
	if got := tx.State(); got != Authenticated {
		t.Errorf("unexpected state: got:%s want:%s", got, Authenticated)
	}
}

func TestRejectedChallenge(t *testing.T) {
	tx, tr, _ := newTestTransmitter(sensor.DexcomG6)
	err := tx.Deliver(authRequestRx(), Authentication)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = tx.Deliver([]byte{byte(AuthChallengeRx), 0x00, 0x01}, Authentication)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Authenticated() || tx.Bonded() {
		t.Errorf("unexpected session flags: authenticated=%t bonded=%t", tx.Authenticated(), tx.Bonded())
	}
	if got := tx.State(); got != Authenticating {
		t.Errorf("unexpected state: got:%s want:%s", got, Authenticating)
	}
	if len(tr.calls) != 1 {
		t.Errorf("unexpected requests after rejection: %+v", tr.calls[1:])
	}
}

func TestSniffing(t *testing.T) {
	tx, tr, _ := newTestTransmitter(sensor.DexcomG6, WithSniffing())
	err := tx.Deliver(authRequestRx(), Authentication)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.calls) != 0 {
		t.Errorf("unexpected writes while sniffing: %+v", tr.calls)
	}
	err = tx.Request(GlucoseRequest(sensor.DexcomG6))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.calls) != 0 {
		t.Errorf("unexpected writes while sniffing: %+v", tr.calls)
	}
}

func TestTransportFailure(t *testing.T) {
	tx, tr, _ := newTestTransmitter(sensor.DexcomG6)
	tr.err = errors.New("link lost")
	err := tx.Deliver(authRequestRx(), Authentication)
	if !errors.Is(err, cgm.ErrTransport) {
		t.Errorf("unexpected error: got:%v want:%v", err, cgm.ErrTransport)
	}
	err = tx.Request(TransmitterTimeRequest())
	if !errors.Is(err, cgm.ErrTransport) {
		t.Errorf("unexpected error: got:%v want:%v", err, cgm.ErrTransport)
	}
}

var shortFrameTests = []struct {
	name string
	ch   Channel
	data []byte
}{
	{name: "empty", ch: Control, data: nil},
	{name: "auth_request", ch: Authentication, data: authRequestRx()[:16]},
	{name: "auth_challenge", ch: Authentication, data: []byte{byte(AuthChallengeRx), 0x01}},
	{name: "time", ch: Control, data: timeRx(3600, 100)[:11]},
	{name: "g6_glucose", ch: Control, data: g6GlucoseRx(1, 600, 120, Okay, 0)[:15]},
	{name: "backfill_header", ch: Control, data: []byte{byte(GlucoseBackfillRx), 0x00, 0x01}},
	{name: "battery", ch: Control, data: []byte{byte(BatteryStatusRx), 0x00}},
}

func TestShortFrames(t *testing.T) {
	for _, test := range shortFrameTests {
		t.Run(test.name, func(t *testing.T) {
			tx, tr, h := newTestTransmitter(sensor.DexcomG6)
			tx.Deliver([]byte{0x01, 0x02, 0x03}, Backfill)
			err := tx.Deliver(test.data, test.ch)
			if !errors.Is(err, cgm.ErrDecode) {
				t.Errorf("unexpected error: got:%v want:%v", err, cgm.ErrDecode)
			}
			if len(tr.calls) != 0 {
				t.Errorf("unexpected requests: %+v", tr.calls)
			}
			if h.Len() != 0 {
				t.Errorf("unexpected history: %v", h.Records())
			}
			if tx.Authenticated() || tx.Bonded() || !tx.Activation().IsZero() {
				t.Error("unexpected state change")
			}
			if got := tx.Buffered(); got != 3 {
				t.Errorf("unexpected backfill buffer length: got:%d want:3", got)
			}
		})
	}
}

func TestTransmitterTime(t *testing.T) {
	tx, _, _ := newTestTransmitter(sensor.DexcomG6)

	bad := timeRx(60, 0)
	bad[len(bad)-1] ^= 0xff
	err := tx.Deliver(bad, Control)
	if !errors.Is(err, cgm.ErrChecksum) {
		t.Errorf("unexpected error: got:%v want:%v", err, cgm.ErrChecksum)
	}
	if !tx.Activation().IsZero() {
		t.Errorf("activation set from invalid frame: %v", tx.Activation())
	}

	err = tx.Deliver(timeRx(3600, 100), Control)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := testNow.Add(-time.Hour)
	if got := tx.Activation(); !got.Equal(want) {
		t.Errorf("unexpected activation: got:%v want:%v", got, want)
	}
	if got := tx.SessionStart(); got != 100 {
		t.Errorf("unexpected session start: got:%d want:100", got)
	}

	// The activation date is fixed for the connection.
	err = tx.Deliver(timeRx(7200, 200), Control)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := tx.Activation(); !got.Equal(want) {
		t.Errorf("activation changed: got:%v want:%v", got, want)
	}
	if got := tx.SessionStart(); got != 200 {
		t.Errorf("unexpected session start: got:%d want:200", got)
	}
}

func TestG6Glucose(t *testing.T) {
	tx, _, h := newTestTransmitter(sensor.DexcomG6)
	err := tx.Deliver(timeRx(3600, 0), Control)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	activation := testNow.Add(-time.Hour)

	err = tx.Deliver(g6GlucoseRx(7, 600, 0x1000|120, Okay, -2), Control)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []glucose.Record{{
		ID:          2,
		Timestamp:   600,
		Date:        activation.Add(600 * time.Second),
		Value:       120,
		Trend:       -2,
		Predicted:   glucose.NoValue,
		State:       uint8(Okay),
		DisplayOnly: true,
		Valid:       true,
	}}
	if got := h.Records(); !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected history:\ngot: %+v\nwant:%+v", got, want)
	}
	if got := tx.Last(); !reflect.DeepEqual(got, want[0]) {
		t.Errorf("unexpected last reading:\ngot: %+v\nwant:%+v", got, want[0])
	}

	// Repeated delivery is idempotent.
	err = tx.Deliver(g6GlucoseRx(7, 600, 130, Okay, -2), Control)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.Records(); !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected history after duplicate:\ngot: %+v\nwant:%+v", got, want)
	}
}

func TestInvalidCRCExcluded(t *testing.T) {
	tx, _, h := newTestTransmitter(sensor.DexcomG6)
	msg := g6GlucoseRx(1, 900, 140, Okay, 1)
	msg[len(msg)-2] ^= 0x55
	err := tx.Deliver(msg, Control)
	var cerr *cgm.ChecksumError
	if !errors.As(err, &cerr) {
		t.Fatalf("unexpected error: got:%v want:%T", err, cerr)
	}
	if cerr.Want == cerr.Got {
		t.Errorf("checksum error does not report mismatch: %v", cerr)
	}
	if h.Len() != 0 {
		t.Errorf("invalid frame merged: %v", h.Records())
	}

	var m GlucoseMessage
	err = m.UnmarshalBinary(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Valid || m.Glucose != 140 {
		t.Errorf("invalid frame not decoded for diagnostics: %+v", m)
	}
}

func TestG7Glucose(t *testing.T) {
	tx, _, h := newTestTransmitter(sensor.DexcomG7)
	msg := []byte{
		0x4f, 0x00, 0xd5, 0x07, 0x00, 0x00, 0x09, 0x00, 0x00, 0x01,
		0x05, 0x00, 0x61, 0x00, 0x06, 0x01, 0xff, 0xff, 0x0e,
	}
	var m G7GlucoseMessage
	err := m.UnmarshalBinary(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantMsg := G7GlucoseMessage{
		MessageTimestamp: 2005,
		Sequence:         9,
		Age:              5,
		Timestamp:        2000,
		Glucose:          97,
		State:            Okay,
		Trend:            1,
		Predicted:        glucose.NoValue,
		Calibration:      0x0e,
	}
	if m != wantMsg {
		t.Errorf("unexpected message:\ngot: %+v\nwant:%+v", m, wantMsg)
	}

	err = tx.Deliver(msg, Control)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []glucose.Record{{
		ID:        6,
		Timestamp: 2000,
		Value:     97,
		Trend:     1,
		Predicted: glucose.NoValue,
		State:     uint8(Okay),
		Valid:     true,
	}}
	if got := h.Records(); !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected history:\ngot: %+v\nwant:%+v", got, want)
	}
}

func TestG7NoValue(t *testing.T) {
	tx, _, h := newTestTransmitter(sensor.DexcomG7)
	msg := []byte{
		0x4f, 0x00, 0x10, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x01,
		0x20, 0x00, 0xff, 0xff, 0x02, 0x7f, 0xff, 0xff, 0x10,
	}
	err := tx.Deliver(msg, Control)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Len() != 0 {
		t.Errorf("reading without value merged: %v", h.Records())
	}
	var m G7GlucoseMessage
	m.UnmarshalBinary(msg)
	if m.Timestamp != 0 {
		t.Errorf("unexpected clamped timestamp: got:%d want:0", m.Timestamp)
	}
	if m.Trend != glucose.NoTrend || m.DisplayOnly {
		t.Errorf("unexpected sentinel handling: trend=%v display only=%t", m.Trend, m.DisplayOnly)
	}
}

var trendParityTests = []int8{-127, -13, -1, 0, 1, 13, 126}

func TestTrendParity(t *testing.T) {
	for _, trend := range trendParityTests {
		var g6 GlucoseMessage
		err := g6.UnmarshalBinary(g6GlucoseRx(1, 600, 120, Okay, trend))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		g7msg := []byte{
			0x4f, 0x00, 0xd5, 0x07, 0x00, 0x00, 0x09, 0x00, 0x00, 0x01,
			0x05, 0x00, 0x61, 0x00, 0x06, byte(trend), 0xff, 0xff, 0x0e,
		}
		var g7 G7GlucoseMessage
		err = g7.UnmarshalBinary(g7msg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		g6Trend := g6.Record(time.Time{}).Trend
		g7Trend := g7.Record(time.Time{}).Trend
		if g6Trend != g7Trend {
			t.Errorf("trend units differ for %d: g6:%v g7:%v", trend, g6Trend, g7Trend)
		}
		if want := float64(trend) / 10; g6Trend.Rate() != want {
			t.Errorf("unexpected rate for %d: got:%v want:%v", trend, g6Trend.Rate(), want)
		}
	}
}

func g6Record(ts uint32, value uint16, state AlgorithmState, trend int8) []byte {
	rec := binary.LittleEndian.AppendUint32(nil, ts)
	rec = binary.LittleEndian.AppendUint16(rec, value)
	return append(rec, byte(state), byte(trend))
}

// g6Stream frames records as a G6 transmitter sends them on the
// backfill channel.
func g6Stream(recs ...[]byte) [][]byte {
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	for _, r := range recs {
		payload = append(payload, r...)
	}
	var pkts [][]byte
	i := 1
	for chunk := range slices.Chunk(payload, g6PacketSize-g6PacketHeader) {
		pkts = append(pkts, append([]byte{byte(i), 0x00}, chunk...))
		i++
	}
	return pkts
}

func backfillRx(start, end uint32) []byte {
	msg := []byte{byte(GlucoseBackfillRx), 0x00, 0x01, 0x00}
	msg = binary.LittleEndian.AppendUint32(msg, start)
	msg = binary.LittleEndian.AppendUint32(msg, end)
	msg = append(msg, make([]byte, 6)...)
	return codec.AppendXModem(msg)
}

func TestG6Backfill(t *testing.T) {
	tx, _, h := newTestTransmitter(sensor.DexcomG6)
	err := tx.Deliver(timeRx(7200, 0), Control)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	activation := testNow.Add(-2 * time.Hour)

	// A live reading in slot 2 that backfill overlaps.
	err = tx.Deliver(g6GlucoseRx(1, 600, 110, Okay, 0), Control)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pkts := g6Stream(
		g6Record(300, 100, Okay, 1),
		g6Record(600, 999, Okay, 2),
		g6Record(900, 120, NeedsCalibration, -3),
	)
	if len(pkts) != 2 {
		t.Fatalf("unexpected packet count: got:%d want:2", len(pkts))
	}
	for _, p := range pkts {
		err = tx.Deliver(p, Backfill)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	err = tx.Deliver(backfillRx(300, 900), Control)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := tx.Buffered(); got != 0 {
		t.Errorf("backfill buffer not cleared: %d bytes", got)
	}

	want := []glucose.Record{
		{ID: 1, Timestamp: 300, Date: activation.Add(300 * time.Second), Value: 100, Trend: 1, Predicted: glucose.NoValue, State: uint8(Okay), Valid: true, Backfilled: true},
		{ID: 2, Timestamp: 600, Date: activation.Add(600 * time.Second), Value: 110, Trend: 0, Predicted: glucose.NoValue, State: uint8(Okay), Valid: true},
		{ID: 3, Timestamp: 900, Date: activation.Add(900 * time.Second), Value: 120, Trend: -3, Predicted: glucose.NoValue, State: uint8(NeedsCalibration), Valid: true, Backfilled: true},
	}
	if got := h.Records(); !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected history:\ngot: %+v\nwant:%+v", got, want)
	}
}

func TestG6BackfillPartialRecord(t *testing.T) {
	tx, _, h := newTestTransmitter(sensor.DexcomG6)
	pkts := g6Stream(g6Record(300, 100, Okay, 1), g6Record(600, 105, Okay, 1)[:5])
	for _, p := range pkts {
		tx.Deliver(p, Backfill)
	}
	err := tx.Deliver(backfillRx(300, 600), Control)
	if !errors.Is(err, cgm.ErrDecode) {
		t.Errorf("unexpected error: got:%v want:%v", err, cgm.ErrDecode)
	}
	if got := tx.Buffered(); got != 0 {
		t.Errorf("backfill buffer not cleared: %d bytes", got)
	}
	if h.Len() != 1 {
		t.Errorf("unexpected history length: got:%d want:1", h.Len())
	}
}

func TestG6BackfillOutOfOrder(t *testing.T) {
	// Packets are concatenated in arrival order and the index byte is
	// not used to reorder them, so a reordered stream decodes to the
	// wrong records.
	recs := [][]byte{
		g6Record(300, 100, Okay, 1),
		g6Record(600, 105, Okay, 1),
		g6Record(900, 110, Okay, 1),
	}
	pkts := g6Stream(recs...)
	inOrder, err := G6Backfill(bytes.Join(pkts, nil), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reordered, _ := G6Backfill(bytes.Join([][]byte{pkts[1], pkts[0]}, nil), time.Time{})
	if reflect.DeepEqual(inOrder, reordered) {
		t.Error("expected reordered stream to decode differently")
	}
	if len(inOrder) != 3 || inOrder[0].Timestamp != 300 || inOrder[2].Timestamp != 900 {
		t.Errorf("unexpected in order decode: %+v", inOrder)
	}
}

func TestG7Backfill(t *testing.T) {
	tx, _, h := newTestTransmitter(sensor.DexcomG7)
	pkts := [][]byte{
		{0x45, 0xa1, 0x00, 0x00, 0x96, 0x00, 0x06, 0x0f, 0xfc},
		{0x71, 0xa2, 0x00, 0x00, 0xff, 0xff, 0x01, 0x0f, 0x7f},
		{0x9d, 0xa3, 0x00, 0x00, 0x9b, 0x10, 0x06, 0x0f, 0x7f},
	}
	for _, p := range pkts {
		err := tx.Deliver(p, Backfill)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	err := tx.Deliver([]byte{byte(BackfillFinished), 0x00}, Control)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := tx.Buffered(); got != 0 {
		t.Errorf("backfill buffer not cleared: %d bytes", got)
	}
	want := []glucose.Record{
		{ID: 137, Timestamp: 0xa145, Value: 150, Trend: -4, Predicted: glucose.NoValue, State: uint8(Okay), Valid: true, Backfilled: true},
		{ID: 139, Timestamp: 0xa39d, Value: 155, Trend: glucose.NoTrend, Predicted: glucose.NoValue, State: uint8(Okay), DisplayOnly: true, Valid: true, Backfilled: true},
	}
	if got := h.Records(); !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected history:\ngot: %+v\nwant:%+v", got, want)
	}
}

func TestBatteryStatus(t *testing.T) {
	tx, _, _ := newTestTransmitter(sensor.DexcomG6)
	msg := codec.AppendXModem([]byte{byte(BatteryStatusRx), 0x00, 0x2c, 0x01, 0x18, 0x01, 0xc8, 0x05, 0x2a, 0x1f})
	err := tx.Deliver(msg, Control)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := tx.Battery()
	if !got.Valid || got.VoltageA != 300 || got.Runtime != 42 {
		t.Errorf("unexpected battery status: %+v", got)
	}
}

func TestUnknownOpcode(t *testing.T) {
	tx, tr, h := newTestTransmitter(sensor.DexcomG6)
	err := tx.Deliver([]byte{0xee, 0x01, 0x02}, Control)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if got := tx.Opcode(); got != 0xee {
		t.Errorf("unexpected opcode: got:%s want:%s", got, Opcode(0xee))
	}
	if len(tr.calls) != 0 || h.Len() != 0 {
		t.Errorf("unexpected effect of unknown opcode: calls=%+v history=%v", tr.calls, h.Records())
	}
}
