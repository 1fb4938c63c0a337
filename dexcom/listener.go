// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dexcom

import (
	"bytes"
	"fmt"

	"tinygo.org/x/bluetooth"

	"github.com/kortschak/cgm/internal/forkbeard"
)

// Listener is a Transport over a connected Bluetooth transmitter.
type Listener struct {
	dev   *bluetooth.Device
	chars [numChannels]bluetooth.DeviceCharacteristic

	tx     *Transmitter
	handle func(error)
}

// NewListener returns a new Listener for the provided Bluetooth device.
func NewListener(dev *bluetooth.Device) (*Listener, error) {
	chars, err := forkbeard.Characteristics(dev, dataService, channelUUIDs[:]...)
	if err != nil {
		return nil, fmt.Errorf("failed to get transmitter characteristics: %w", err)
	}
	l := &Listener{dev: dev}
	for c, id := range channelUUIDs {
		l.chars[c] = chars[id]
	}
	return l, nil
}

// Listen starts the authentication handshake by subscribing to the
// authentication channel. Traffic received by the Listener is passed
// to tx and errors from tx are passed to h if it is not nil.
func (l *Listener) Listen(tx *Transmitter, h func(error)) error {
	l.tx = tx
	l.handle = h
	return l.EnableNotifications(Authentication)
}

func (l *Listener) dispatch(ch Channel, buf []byte) {
	if l.tx == nil {
		return
	}
	// The notification buffer may be reused by the stack.
	err := l.tx.Deliver(bytes.Clone(buf), ch)
	if err != nil && l.handle != nil {
		l.handle(fmt.Errorf("%s: %w", ch, err))
	}
}

// Write implements Transport.
func (l *Listener) Write(ch Channel, data []byte, withResponse bool) error {
	if ch >= numChannels {
		return fmt.Errorf("invalid channel: %d", ch)
	}
	if withResponse {
		return writeWithResponse(l.chars[ch], data)
	}
	_, err := l.chars[ch].WriteWithoutResponse(data)
	return err
}

// EnableNotifications implements Transport.
func (l *Listener) EnableNotifications(ch Channel) error {
	if ch >= numChannels {
		return fmt.Errorf("invalid channel: %d", ch)
	}
	return l.chars[ch].EnableNotifications(func(buf []byte) {
		l.dispatch(ch, buf)
	})
}

// Read implements Transport.
func (l *Listener) Read(ch Channel) error {
	if ch >= numChannels {
		return fmt.Errorf("invalid channel: %d", ch)
	}
	buf, err := forkbeard.ReadCharacteristic(l.chars[ch])
	if err != nil {
		return err
	}
	l.dispatch(ch, buf)
	return nil
}

// Close disables notifications, closes the transmitter session and
// disconnects the device.
func (l *Listener) Close() error {
	for c := range l.chars {
		l.chars[c].EnableNotifications(nil)
	}
	if l.tx != nil {
		l.tx.Disconnect()
	}
	return l.dev.Disconnect()
}
