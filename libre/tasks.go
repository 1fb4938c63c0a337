// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package libre

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/kortschak/cgm"
	"github.com/kortschak/cgm/codec"
	"github.com/kortschak/cgm/sensor"
)

// Task is a sensor maintenance operation.
type Task uint8

//go:generate go tool golang.org/x/tools/cmd/stringer -type Task -trimprefix Task
const (
	TaskDump Task = iota
	TaskReset
	TaskProlong
	TaskUnlock
	TaskActivate
)

// Execute runs the task against the sensor.
func (e *Engine) Execute(ctx context.Context, t Task) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.busy.Unlock()
	e.log.Info("nfc task", "task", t, "sensor", e.sensor.Type)
	switch t {
	case TaskDump:
		_, err := e.dump(ctx)
		return err
	case TaskReset:
		return e.reset(ctx)
	case TaskProlong:
		return e.prolong(ctx)
	case TaskUnlock:
		return e.unlock(ctx)
	case TaskActivate:
		return e.activate(ctx)
	default:
		return fmt.Errorf("invalid task: %d", t)
	}
}

// FRAM layout beyond the plaintext image.
const (
	headerBlocks    = 43 // blocks in a plaintext image
	libre1Extra     = 201
	commandTable    = FRAMAddress + headerBlocks*sensor.BlockSize
	commandSize     = 195 * sensor.BlockSize
	resetHandler    = 0xffb6 // address of the E0 handler pointer
	patchInfoHandle = 0xffc6 // address of the A1 handler pointer
	footerAddress   = FRAMAddress + 320
	footerSize      = 3 * sensor.BlockSize

	encryptedBlocks = 89
	extendedBlocks  = 1252
)

// MemoryDump is the result of a Dump.
type MemoryDump struct {
	// Raw memory windows. These are only available from
	// Libre 1 sensors.
	Config     []byte
	SRAM       []byte
	PatchTable []byte
	RawFRAM    []byte

	// Blocks is the FRAM read with the ISO 15693 command.
	Blocks []byte

	// Extended is the FRAM read with the vendor block command.
	Extended []byte
	// Segments are the CRC protected segments found in Extended.
	Segments []Segment
}

// Segment is a CRC protected region of a memory dump.
type Segment struct {
	Offset int
	Size   int // including the CRC
	Name   string
}

var segmentNames = map[int]string{
	0x000: "header",
	0x018: "body",
	0x140: "footer",
	0x158: "command table",
	0x170: "decrypted header",
	0x188: "decrypted body",
	0x2b0: "decrypted footer",
}

// scanLimit bounds the segment scan to the encrypted window and the
// first records beyond it.
const scanLimit = encryptedBlocks*sensor.BlockSize + 34 + 10

// Segments returns the consecutive CRC protected segments from the
// start of data. Each segment is a little-endian Libre CRC followed
// by the shortest even length run of bytes it verifies.
func Segments(data []byte) []Segment {
	n := min(scanLimit, len(data))
	var segs []Segment
	off := 0
	for i := off + 2; off < n-3 && i < n-1; i += 2 {
		if binary.LittleEndian.Uint16(data[off:]) != codec.LibreCRC(data[off+2:i+2]) {
			continue
		}
		name, ok := segmentNames[off]
		if !ok {
			name = "unknown"
		}
		segs = append(segs, Segment{Offset: off, Size: i + 2 - off, Name: name})
		off = i + 2
		i = off
	}
	return segs
}

// Dump reads the memory windows and FRAM of the sensor and records
// the FRAM read as the sensor image. Raw windows that the sensor does
// not support are skipped. While the sensor holds an encrypted image
// the vendor read is limited to the locked range, and the block read
// replaces the encrypted image.
func (e *Engine) Dump(ctx context.Context) (*MemoryDump, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.busy.Unlock()
	return e.dump(ctx)
}

func (e *Engine) dump(ctx context.Context) (*MemoryDump, error) {
	var d MemoryDump
	libre1 := e.sensor.Type == sensor.Libre1
	for _, w := range []struct {
		name    string
		address int
		size    int
		dst     *[]byte
		libre1  bool
	}{
		{name: "config", address: ConfigAddress, size: ConfigSize, dst: &d.Config},
		{name: "sram", address: SRAMAddress, size: SRAMSize, dst: &d.SRAM},
		{name: "patch table", address: PatchTableAddress, size: PatchTableSize, dst: &d.PatchTable, libre1: true},
		{name: "fram", address: FRAMAddress, size: FRAMSize, dst: &d.RawFRAM, libre1: true},
	} {
		if w.libre1 && !libre1 {
			continue
		}
		data, err := e.readRaw(ctx, w.address, w.size)
		if err != nil {
			e.log.Info("raw window unavailable", "window", w.name, "error", err)
			continue
		}
		*w.dst = data
		e.log.Debug("raw window", "window", w.name, "address", fmt.Sprintf("%#04x", w.address), "data", fmt.Sprintf("%x", data))
	}

	var errs []error
	count := headerBlocks
	if libre1 {
		count += libre1Extra
	}
	blocks, err := e.readBlocks(ctx, 0, count)
	if err != nil {
		errs = append(errs, err)
	} else {
		d.Blocks = blocks
	}

	// An encrypted sensor limits the vendor read to 89 blocks until
	// it is unlocked.
	count = extendedBlocks
	if len(e.sensor.EncryptedFRAM) != 0 {
		count = encryptedBlocks
	}
	if e.sensor.SecurityGeneration > 1 {
		count = headerBlocks
	}
	ext, err := e.readExtended(ctx, 0, count)
	switch {
	case errors.Is(err, cgm.ErrUnsupportedCommand):
		e.log.Info("extended read unavailable", "error", err)
	case err != nil:
		errs = append(errs, err)
	}
	d.Extended = ext
	d.Segments = Segments(ext)
	for _, s := range d.Segments {
		e.log.Info("crc segment", "name", s.Name, "block", s.Offset/sensor.BlockSize, "offset", s.Offset, "size", s.Size)
	}

	if d.Blocks != nil {
		errs = append(errs, e.sensor.ApplyFullRead(d.Blocks))
	}
	return &d, errors.Join(errs...)
}

// Reset restarts a Libre 1 sensor by temporarily redirecting the
// patch info command to the reset handler. The command table is left
// as it was found. A failure after the table has been modified is
// reported as cgm.ErrStateInconsistency and the sensor is marked
// stale.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.busy.Unlock()
	return e.reset(ctx)
}

func (e *Engine) reset(ctx context.Context) error {
	if e.sensor.Type != sensor.Libre1 {
		return unsupported("reset", e.sensor)
	}
	table, err := e.readRaw(ctx, commandTable, commandSize)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	// Refuse to patch a table we cannot restore faithfully.
	err = codec.CheckLibreCRC("command table", table)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	e0Off := resetHandler - commandTable
	a1Off := patchInfoHandle - commandTable
	e0 := binary.LittleEndian.Uint16(table[e0Off:])
	a1 := binary.LittleEndian.Uint16(table[a1Off:])
	original := binary.LittleEndian.Uint16(table)

	patched := bytes.Clone(table)
	binary.LittleEndian.PutUint16(patched[a1Off:], e0)
	crc := codec.PatchLibreCRC(patched)
	e.log.Info("command table", "e0", fmt.Sprintf("%#04x", e0), "a1", fmt.Sprintf("%#04x", a1),
		"crc", fmt.Sprintf("%#04x", original), "patched_crc", fmt.Sprintf("%#04x", crc))

	err = e.writeRaw(ctx, patchInfoHandle, codec.LE16(e0))
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	var errs []error
	err = e.writeRaw(ctx, commandTable, codec.LE16(crc))
	if err != nil {
		errs = append(errs, err)
	} else {
		_, err = e.send(ctx, GetPatchInfo())
		errs = append(errs, err)
	}
	// Restore even if the reset was not triggered.
	err = e.writeRaw(ctx, patchInfoHandle, codec.LE16(a1))
	if err == nil {
		err = e.writeRaw(ctx, commandTable, codec.LE16(original))
	}
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return e.inconsistent("reset", err)
	}

	blocks, err := e.readBlocks(ctx, 0, headerBlocks)
	if err != nil {
		return e.inconsistent("reset", err)
	}
	e.log.Info("did reset fram", "data", fmt.Sprintf("%x", blocks))
	return e.sensor.ApplyFullRead(blocks)
}

// Prolong removes the maximum life limit of a Libre 1 sensor. The
// footer is patched and its CRC repaired, then the image is read back
// to confirm. A failure after the footer has been modified is reported
// as cgm.ErrStateInconsistency and the sensor is marked stale.
func (e *Engine) Prolong(ctx context.Context) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.busy.Unlock()
	return e.prolong(ctx)
}

func (e *Engine) prolong(ctx context.Context) error {
	if e.sensor.Type != sensor.Libre1 {
		return unsupported("prolong", e.sensor)
	}
	footer, err := e.readRaw(ctx, footerAddress, footerSize)
	if err != nil {
		return fmt.Errorf("prolong: %w", err)
	}
	maxLife := binary.LittleEndian.Uint16(footer[sensor.MaxLifeOffset:])
	e.log.Info("maximum life", "minutes", maxLife)

	patched := bytes.Clone(footer)
	err = sensor.MaximumLifeOverride(patched)
	if err != nil {
		return err
	}
	crc := codec.PatchLibreCRC(patched)

	err = e.writeRaw(ctx, footerAddress+sensor.MaxLifeOffset, patched[sensor.MaxLifeOffset:sensor.MaxLifeOffset+2])
	if err != nil {
		return fmt.Errorf("prolong: %w", err)
	}
	err = e.writeRaw(ctx, footerAddress, codec.LE16(crc))
	if err != nil {
		return e.inconsistent("prolong", err)
	}

	blocks, err := e.readBlocks(ctx, 0, headerBlocks)
	if err != nil {
		return e.inconsistent("prolong", err)
	}
	got := blocks[len(blocks)-footerSize:]
	if !bytes.Equal(got, patched) {
		return e.inconsistent("prolong", fmt.Errorf("footer read back as %x, wrote %x", got, patched))
	}
	e.log.Info("did overwrite fram footer", "data", fmt.Sprintf("%x", got))
	return e.sensor.ApplyFullRead(blocks)
}

// Unlock sends the unlock command to an encrypted sensor and reads
// its FRAM back. The read is made whether or not the command
// succeeds since some sensors decrypt their FRAM in place and return
// nothing.
func (e *Engine) Unlock(ctx context.Context) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.busy.Unlock()
	return e.unlock(ctx)
}

func (e *Engine) unlock(ctx context.Context) error {
	if e.sensor.SecurityGeneration < 1 {
		return unsupported("unlock", e.sensor)
	}
	cmd, err := UnlockCommand(e.sensor)
	if err != nil {
		return err
	}
	out, cerr := e.send(ctx, cmd)
	switch {
	case cerr != nil:
		e.log.Error("unlock failed", "error", cerr)
	case len(out) == 0:
		e.log.Info("fram decrypted in place")
	}
	return errors.Join(cerr, e.reread(ctx))
}

func (e *Engine) reread(ctx context.Context) error {
	blocks, err := e.readBlocks(ctx, 0, headerBlocks)
	if err != nil {
		return err
	}
	return e.sensor.ApplyFullRead(blocks)
}

// Activate activates the sensor. Libre 1 and Libre 2 sensors are read
// back after the command. A Libre 3 activation records the sensor's
// Bluetooth address, PIN and activation time.
func (e *Engine) Activate(ctx context.Context) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.busy.Unlock()
	return e.activate(ctx)
}

func (e *Engine) activate(ctx context.Context) error {
	if e.sensor.SecurityGeneration == 2 {
		return unsupported("activate", e.sensor)
	}
	cmd, err := ActivationCommand(e.sensor)
	if err != nil {
		return err
	}
	out, err := e.send(ctx, cmd)
	if e.sensor.Type != sensor.Libre3 {
		if err == nil && isLibre2(e.sensor.Type) && len(out) == 4 {
			e.log.Info("sensor activated and warming up", "response", fmt.Sprintf("%x", out))
		}
		return errors.Join(err, e.reread(ctx))
	}
	if err != nil {
		return err
	}
	r, err := DecodeActivationResponse(out)
	if err != nil {
		return err
	}
	e.sensor.BDAddress = r.BDAddress
	e.sensor.BLEPIN = r.PIN
	e.sensor.SetActivation(r.ActivationTime, e.now())
	e.log.Info("libre 3 activated", "address", r.BDAddress, "pin", fmt.Sprintf("%x", r.PIN), "activation", r.ActivationTime)
	return nil
}

// PatchInfo returns the patch info reported by the sensor.
func (e *Engine) PatchInfo(ctx context.Context) ([]byte, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.busy.Unlock()
	return e.send(ctx, GetPatchInfo())
}
