// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package libre implements the Abbott FreeStyle Libre NFC command set:
// raw and block memory access, FRAM dumps, the Libre 1 memory patches
// and the unlock and activation commands of the encrypted generations.
//
// Memory patching follows the analyses in [techreport] and [goodtag].
//
// [techreport]: https://fortinetweb.s3.amazonaws.com/fortiguard/research/techreport.pdf
// [goodtag]: https://github.com/travisgoodspeed/goodtag/wiki/RF430TAL152H
package libre

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kortschak/cgm"
	"github.com/kortschak/cgm/sensor"
)

// Tag is an ISO 15693 session with a sensor. Responses carry the
// command payload without the ISO 15693 flags byte.
type Tag interface {
	// ReadMultipleBlocks reads count blocks starting at first.
	ReadMultipleBlocks(ctx context.Context, first, count int) ([]byte, error)
	// WriteSingleBlock writes one 8 byte block.
	WriteSingleBlock(ctx context.Context, block int, data []byte) error
	// CustomCommand sends a manufacturer command.
	CustomCommand(ctx context.Context, code byte, params []byte) ([]byte, error)
}

// Command is a manufacturer custom command.
type Command struct {
	Code        byte
	Params      []byte
	Description string
}

func (c Command) String() string {
	return fmt.Sprintf("%02X %x (%s)", c.Code, c.Params, c.Description)
}

// ErrBusy is returned when an operation is started while another is
// in flight on the same Engine.
var ErrBusy = errors.New("operation in progress")

// Option is an Engine configuration option.
type Option func(*Engine)

// WithLogger sets the log sink of the Engine.
func WithLogger(log cgm.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock sets the time source used to age activated sensors.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine runs commands against a Libre sensor. Only one operation may
// be in flight at a time; a concurrent call fails with ErrBusy.
//
// The engine does not decrypt sensor memory. A caller holding an
// encrypted image, from a Bluetooth packet or a short NFC read, records
// it with sensor.Sensor.ApplyEncryptedRead before calling Dump or
// Unlock. The next full read is then taken as the decrypted image.
type Engine struct {
	sensor *sensor.Sensor
	tag    Tag
	log    cgm.Logger
	now    func() time.Time

	busy sync.Mutex
}

// NewEngine returns an Engine for the sensor s reached through tag.
func NewEngine(s *sensor.Sensor, tag Tag, opts ...Option) *Engine {
	e := &Engine{
		sensor: s,
		tag:    tag,
		log:    cgm.Discard,
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) acquire() error {
	if !e.busy.TryLock() {
		return ErrBusy
	}
	return nil
}

func (e *Engine) send(ctx context.Context, cmd Command) ([]byte, error) {
	e.log.Debug("nfc command", "command", cmd)
	out, err := e.tag.CustomCommand(ctx, cmd.Code, cmd.Params)
	if err != nil {
		return out, fmt.Errorf("%s: %w: %w", cmd.Description, cgm.ErrTransport, err)
	}
	e.log.Debug("nfc response", "command", cmd.Description, "data", fmt.Sprintf("%x", out))
	return out, nil
}

func unsupported(op string, s *sensor.Sensor) error {
	return fmt.Errorf("%s: %w by %s (security generation %d)", op, cgm.ErrUnsupportedCommand, s.Type, s.SecurityGeneration)
}

// inconsistent marks the sensor image as untrusted after a patch
// sequence failed part way.
func (e *Engine) inconsistent(op string, err error) error {
	e.sensor.Stale = true
	e.log.Error("patch sequence aborted", "op", op, "error", err)
	return fmt.Errorf("%s: %w: %w", op, cgm.ErrStateInconsistency, err)
}
