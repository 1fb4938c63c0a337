// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package libre

import (
	"context"
	"errors"
	"fmt"

	"github.com/kortschak/cgm"
	"github.com/kortschak/cgm/sensor"
)

// Libre 1 memory map.
const (
	ConfigAddress     = 0x1a00
	ConfigSize        = 64
	SRAMAddress       = 0x1c00
	SRAMSize          = 512
	PatchTableAddress = 0xffac
	PatchTableSize    = 36
	FRAMAddress       = 0xf860
	FRAMSize          = 244 * sensor.BlockSize
)

const (
	maxRawWords     = 12
	maxReadBlocks   = 3
	maxExtendBlocks = 3
)

// ReadRaw reads n bytes of Libre 1 memory starting at address.
func (e *Engine) ReadRaw(ctx context.Context, address, n int) ([]byte, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.busy.Unlock()
	return e.readRaw(ctx, address, n)
}

func (e *Engine) readRaw(ctx context.Context, address, n int) ([]byte, error) {
	if e.sensor.Type != sensor.Libre1 {
		return nil, unsupported("read raw", e.sensor)
	}
	buf := make([]byte, 0, n)
	for len(buf) < n {
		addr := address + len(buf)
		want := min(n-len(buf), 2*maxRawWords)
		// The tag reads whole words from the even address at or
		// below addr.
		odd := addr % 2
		words := min((odd+want+1)/2, maxRawWords)
		out, err := e.send(ctx, readRawCommand(addr, words))
		if err != nil {
			return buf, fmt.Errorf("read raw %#04x: %w", addr, err)
		}
		if len(out) <= odd {
			return buf, &cgm.DecodeError{Op: "read raw", Need: odd + 1, Have: len(out)}
		}
		data := out[odd:]
		buf = append(buf, data[:min(len(data), want)]...)
	}
	return buf, nil
}

// WriteRaw writes data to Libre 1 FRAM at address. The enclosing
// blocks are read, patched and written back between an unlock and a
// relock of the FRAM.
func (e *Engine) WriteRaw(ctx context.Context, address int, data []byte) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.busy.Unlock()
	return e.writeRaw(ctx, address, data)
}

func (e *Engine) writeRaw(ctx context.Context, address int, data []byte) error {
	if e.sensor.Type != sensor.Libre1 {
		return unsupported("write raw", e.sensor)
	}
	if len(data) == 0 {
		return nil
	}
	if address < FRAMAddress || address+len(data) > FRAMAddress+FRAMSize {
		return fmt.Errorf("write raw: %w: %#04x is outside FRAM", cgm.ErrUnsupportedCommand, address)
	}

	_, err := e.send(ctx, Command{Code: CodeUnlock, Params: writeKey, Description: "unlock fram"})
	if err != nil {
		return err
	}
	err = e.patchBlocks(ctx, address, data)
	_, lerr := e.send(ctx, Command{Code: CodeLock, Params: writeKey, Description: "lock fram"})
	return errors.Join(err, lerr)
}

func (e *Engine) patchBlocks(ctx context.Context, address int, data []byte) error {
	const bs = sensor.BlockSize
	start := address &^ (bs - 1)
	end := (address + len(data) + bs - 1) &^ (bs - 1)
	blocks, err := e.readRaw(ctx, start, end-start)
	if err != nil {
		return err
	}
	copy(blocks[address-start:], data)
	first := (start - FRAMAddress) / bs
	for i := 0; i < len(blocks); i += bs {
		blk := first + i/bs
		err = e.tag.WriteSingleBlock(ctx, blk, blocks[i:i+bs])
		if err != nil {
			return fmt.Errorf("write block %d: %w: %w", blk, cgm.ErrTransport, err)
		}
		e.log.Debug("wrote block", "block", blk, "data", fmt.Sprintf("%x", blocks[i:i+bs]))
	}
	return nil
}

// ReadBlocks reads count FRAM blocks starting at first with the
// ISO 15693 read multiple blocks command.
func (e *Engine) ReadBlocks(ctx context.Context, first, count int) ([]byte, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.busy.Unlock()
	return e.readBlocks(ctx, first, count)
}

func (e *Engine) readBlocks(ctx context.Context, first, count int) ([]byte, error) {
	buf := make([]byte, 0, count*sensor.BlockSize)
	for read := 0; read < count; {
		n := min(count-read, maxReadBlocks)
		data, err := e.tag.ReadMultipleBlocks(ctx, first+read, n)
		if err != nil {
			return buf, fmt.Errorf("read blocks %d-%d: %w: %w", first+read, first+read+n-1, cgm.ErrTransport, err)
		}
		if len(data) != n*sensor.BlockSize {
			return buf, &cgm.DecodeError{Op: "read blocks", Need: n * sensor.BlockSize, Have: len(data)}
		}
		buf = append(buf, data...)
		read += n
	}
	return buf, nil
}

// ReadExtended reads count blocks starting at first with the vendor
// block read commands, which reach beyond the ISO 15693 address
// range of encrypted sensors.
func (e *Engine) ReadExtended(ctx context.Context, first, count int) ([]byte, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.busy.Unlock()
	return e.readExtended(ctx, first, count)
}

func (e *Engine) readExtended(ctx context.Context, first, count int) ([]byte, error) {
	if e.sensor.SecurityGeneration < 1 {
		return nil, unsupported("read extended", e.sensor)
	}
	buf := make([]byte, 0, count*sensor.BlockSize)
	for read := 0; read < count; {
		n := min(count-read, maxExtendBlocks)
		cmd, err := readBlocksCommand(e.sensor, first+read, n)
		if err != nil {
			return buf, err
		}
		data, err := e.send(ctx, cmd)
		if err != nil {
			return buf, err
		}
		if len(data) < n*sensor.BlockSize {
			return buf, &cgm.DecodeError{Op: cmd.Description, Need: n * sensor.BlockSize, Have: len(data)}
		}
		buf = append(buf, data[:n*sensor.BlockSize]...)
		read += n
	}
	return buf, nil
}
