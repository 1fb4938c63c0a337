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

	"github.com/kortschak/cgm/codec"
	"github.com/kortschak/cgm/sensor"
)

// fakeTag simulates the memory and command handlers of a sensor.
type fakeTag struct {
	mem      [0x10000]byte
	unlocked bool

	patchInfo  []byte
	unlockResp []byte
	activation []byte

	commands []Command
	writes   int
	resets   int

	// failCode makes custom commands with the code fail.
	failCode map[byte]error
	// failWrite makes the nth block write fail.
	failWrite int

	// entered and release, if not nil, hold custom commands.
	entered chan struct{}
	release chan struct{}
}

var errTag = errors.New("tag lost")

func newLibre1Tag() *fakeTag {
	t := &fakeTag{patchInfo: []byte{0xdf, 0x00, 0x00, 0x01, 0x01, 0x02}}
	for i := range t.mem[ConfigAddress : ConfigAddress+ConfigSize] {
		t.mem[ConfigAddress+i] = byte(0x40 + i)
	}
	for i := range t.mem[SRAMAddress : SRAMAddress+SRAMSize] {
		t.mem[SRAMAddress+i] = byte(i)
	}
	copy(t.mem[FRAMAddress:], testFRAM())
	return t
}

// testFRAM returns a plaintext Libre 1 FRAM image of an active sensor
// with valid segment checksums.
func testFRAM() []byte {
	fram := make([]byte, FRAMSize)
	for i := range fram {
		fram[i] = byte(i*7 + 3)
	}
	fram[4] = byte(sensor.StateActive)
	binary.LittleEndian.PutUint16(fram[316:], 1200)
	binary.LittleEndian.PutUint16(fram[320+sensor.MaxLifeOffset:], 20160)
	binary.LittleEndian.PutUint16(fram[resetHandler-FRAMAddress:], 0xfbae)
	binary.LittleEndian.PutUint16(fram[patchInfoHandle-FRAMAddress:], 0xf9ba)
	for _, seg := range [][2]int{{0, 24}, {24, 320}, {320, 344}, {344, 344 + commandSize}} {
		codec.PatchLibreCRC(fram[seg[0]:seg[1]])
	}
	return fram
}

func (t *fakeTag) fram() []byte {
	return t.mem[FRAMAddress : FRAMAddress+FRAMSize]
}

func (t *fakeTag) blocks(first, count int) ([]byte, error) {
	start := FRAMAddress + first*sensor.BlockSize
	end := start + count*sensor.BlockSize
	if first < 0 || end > len(t.mem) {
		return nil, fmt.Errorf("block range %d+%d out of range", first, count)
	}
	return bytes.Clone(t.mem[start:end]), nil
}

func (t *fakeTag) ReadMultipleBlocks(_ context.Context, first, count int) ([]byte, error) {
	return t.blocks(first, count)
}

func (t *fakeTag) WriteSingleBlock(_ context.Context, block int, data []byte) error {
	t.writes++
	if t.writes == t.failWrite {
		return errTag
	}
	if !t.unlocked {
		return errors.New("fram locked")
	}
	if len(data) != sensor.BlockSize {
		return fmt.Errorf("invalid block length: %d", len(data))
	}
	copy(t.mem[FRAMAddress+block*sensor.BlockSize:], data)
	return nil
}

func (t *fakeTag) CustomCommand(_ context.Context, code byte, params []byte) ([]byte, error) {
	t.commands = append(t.commands, Command{Code: code, Params: bytes.Clone(params)})
	if t.entered != nil {
		t.entered <- struct{}{}
		<-t.release
	}
	if err := t.failCode[code]; err != nil {
		return nil, err
	}
	switch code {
	case CodeReadRaw:
		if len(params) != 7 || !bytes.Equal(params[:4], backdoor) {
			return nil, errors.New("invalid read raw")
		}
		addr := int(binary.LittleEndian.Uint16(params[4:])) &^ 1
		return bytes.Clone(t.mem[addr : addr+2*int(params[6])]), nil
	case CodeUnlock, CodeLock:
		if !bytes.Equal(params, writeKey) {
			return nil, errors.New("invalid key")
		}
		t.unlocked = code == CodeUnlock
		return nil, nil
	case CodeGetPatchInfo:
		if len(params) == 0 {
			t.patchInfoHandler()
			return t.patchInfo, nil
		}
		switch params[0] {
		case SubUnlock:
			return t.unlockResp, nil
		case SubReadBlocks:
			return t.blocks(int(params[1]), int(params[2])+1)
		}
	case CodeReadBlock:
		return t.blocks(int(binary.LittleEndian.Uint16(params)), 1)
	case CodeReadBlocks:
		return t.blocks(int(binary.LittleEndian.Uint16(params)), int(params[2])+1)
	case CodeActivate, CodeActivate3:
		return t.activation, nil
	}
	return nil, fmt.Errorf("unsupported command %#02x", code)
}

// patchInfoHandler runs the reset handler if the patch info pointer
// has been redirected to it in a valid command table.
func (t *fakeTag) patchInfoHandler() {
	fram := t.fram()
	table := fram[344 : 344+commandSize]
	if codec.CheckLibreCRC("table", table) != nil {
		return
	}
	if !bytes.Equal(t.mem[resetHandler:resetHandler+2], t.mem[patchInfoHandle:patchInfoHandle+2]) {
		return
	}
	t.resets++
	fram[4] = byte(sensor.StateNotActivated)
	binary.LittleEndian.PutUint16(fram[316:], 0)
	codec.PatchLibreCRC(fram[0:24])
	codec.PatchLibreCRC(fram[24:320])
}

func (t *fakeTag) codes() []byte {
	c := make([]byte, len(t.commands))
	for i, cmd := range t.commands {
		c[i] = cmd.Code
	}
	return c
}
