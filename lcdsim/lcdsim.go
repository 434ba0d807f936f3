// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package lcdsim emulates an HD44780 character LCD behind a PCF8574 I2C
// backpack.
//
// Bus implements i2c.Bus. Every byte written to it is decoded the way the
// real hardware would: Enable's falling edge latches D4-D7 and RS into an
// HD44780 model that starts in 8-bit mode after power on. The resulting
// screen can be read back as text, printed to a terminal using ANSI color
// codes, or rendered to an image.
//
// Useful while the display is still in the mail, and in tests.
package lcdsim

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

const (
	rsBit byte = 0x01
	enBit byte = 0x04
	blBit byte = 0x08
)

var rowOffsets = [4]byte{0x00, 0x40, 0x14, 0x54}

// maxCols is the widest module an HD44780 can drive.
const maxCols = 80

var instances atomic.Uint64

// Bus is an emulated I2C bus with one LCD backpack on it. It answers at any
// address.
type Bus struct {
	mu   sync.Mutex
	name string
	rows int
	cols int

	prev    byte
	fourBit bool
	pending bool
	high    byte
	twoLine bool

	ddram      [128]byte
	addr       byte
	decrement  bool
	displayOn  bool
	cursor     bool
	blink      bool
	backlight  bool
	generation uint64

	record  bool
	writes  []byte
	written uint64
	fail    error
}

// New returns an emulated display of the given geometry, in its power-on
// state: 8-bit interface, display off, DDRAM blank.
func New(rows, cols int) *Bus {
	rows, cols = geometry(rows, cols)
	b := &Bus{
		name: fmt.Sprintf("lcdsim%d", instances.Add(1)),
		rows: rows,
		cols: cols,
	}
	for i := range b.ddram {
		b.ddram[i] = ' '
	}
	return b
}

// Resize changes the visible geometry, as when another module is plugged in
// the same backpack. DDRAM and controller state are kept.
func (b *Bus) Resize(rows, cols int) {
	rows, cols = geometry(rows, cols)
	b.mu.Lock()
	defer b.mu.Unlock()
	if rows == b.rows && cols == b.cols {
		return
	}
	b.rows, b.cols = rows, cols
	b.generation++
}

// Size returns the visible geometry.
func (b *Bus) Size() (rows, cols int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rows, b.cols
}

func geometry(rows, cols int) (int, int) {
	rows = max(1, min(rows, len(rowOffsets)))
	cols = max(1, min(cols, maxCols))
	return rows, cols
}

// Tx implements i2c.Bus. Reads are not supported, the backpack's R/W line is
// held low.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	if len(r) != 0 {
		return errors.New("lcdsim: read not supported")
	}
	for _, v := range w {
		b.feed(v)
	}
	return nil
}

// SetSpeed implements i2c.Bus.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	return nil
}

func (b *Bus) String() string {
	return b.name
}

// Fail makes every following Tx return err. Fail(nil) heals the bus.
func (b *Bus) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = err
}

// Record makes the Bus keep every byte written from now on, for Writes.
func (b *Bus) Record() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record = true
}

// Writes returns a copy of the bytes written since Record was called.
func (b *Bus) Writes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.writes...)
}

// Written returns how many bytes were written so far, recorded or not.
func (b *Bus) Written() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written
}

// Generation increases whenever something visible changes.
func (b *Bus) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

// Backlight reports the state of the backlight pin.
func (b *Bus) Backlight() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.backlight
}

// DisplayOn reports whether the controller has the display enabled.
func (b *Bus) DisplayOn() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.displayOn
}

// FourBit reports whether the controller is in 4-bit interface mode.
func (b *Bus) FourBit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fourBit
}

// Address returns the DDRAM address counter, which is where the cursor is.
func (b *Bus) Address() byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addr
}

// Lines returns the characters currently in DDRAM for each visible row.
func (b *Bus) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lines()
}

func (b *Bus) lines() []string {
	out := make([]string, b.rows)
	for row := range b.rows {
		line := make([]byte, b.cols)
		for col := range b.cols {
			line[col] = b.ddram[(int(rowOffsets[row])+col)&0x7f]
		}
		out[row] = string(line)
	}
	return out
}

// feed processes one byte written to the expander pins.
func (b *Bus) feed(v byte) {
	b.written++
	if b.record {
		b.writes = append(b.writes, v)
	}
	if bl := v&blBit != 0; bl != b.backlight {
		b.backlight = bl
		b.generation++
	}
	if b.prev&enBit != 0 && v&enBit == 0 {
		b.latch(b.prev)
	}
	b.prev = v
}

func (b *Bus) latch(pins byte) {
	nibble := pins >> 4
	rs := pins&rsBit != 0
	if !b.fourBit {
		// D0-D3 are not wired and read as low.
		b.exec(nibble<<4, rs)
		return
	}
	if !b.pending {
		b.high = nibble
		b.pending = true
		return
	}
	b.pending = false
	b.exec(b.high<<4|nibble, rs)
}

func (b *Bus) exec(v byte, rs bool) {
	if rs {
		b.ddram[b.addr&0x7f] = v
		b.advance()
		b.generation++
		return
	}
	switch {
	case v&0x80 != 0:
		b.addr = v & 0x7f
	case v&0x40 != 0:
		// CGRAM address, custom characters are not emulated.
	case v&0x20 != 0:
		b.fourBit = v&0x10 == 0
		b.twoLine = v&0x08 != 0
		b.pending = false
	case v&0x10 != 0:
		// Cursor or display shift.
	case v&0x08 != 0:
		b.displayOn = v&0x04 != 0
		b.cursor = v&0x02 != 0
		b.blink = v&0x01 != 0
		b.generation++
	case v&0x04 != 0:
		b.decrement = v&0x02 == 0
	case v&0x02 != 0:
		b.addr = 0
	case v&0x01 != 0:
		for i := range b.ddram {
			b.ddram[i] = ' '
		}
		b.addr = 0
		b.decrement = false
		b.generation++
	}
}

// advance moves the address counter the way the controller does: in 2 line
// mode the lines are 0x00-0x27 and 0x40-0x67, and one wraps into the other.
func (b *Bus) advance() {
	a := int(b.addr)
	if b.decrement {
		a--
	} else {
		a++
	}
	if b.twoLine {
		switch a {
		case 0x28:
			a = 0x40
		case 0x68:
			a = 0x00
		case 0x3f:
			a = 0x27
		case -1:
			a = 0x67
		}
	} else {
		switch a {
		case 0x50:
			a = 0
		case -1:
			a = 0x4f
		}
	}
	b.addr = byte(a) & 0x7f
}

var _ i2c.Bus = &Bus{}
