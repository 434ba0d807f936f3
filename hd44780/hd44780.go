// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package hd44780 controls the Hitachi LCD display chipset HD-44780 through a
// PCF8574 I2C backpack in 4-bit mode.
//
// The expander's 8 output pins carry one nibble of data (D4-D7 on bits 4-7),
// the backlight (bit 3), Enable (bit 2), R/W (bit 1, held low) and
// Register Select (bit 0). Every byte written to the expander carries the
// backlight bit, otherwise the backlight flickers. Backlight(0) is the one
// way to clear it: from then on every byte is written without it, until
// the backlight is turned back on.
//
// The busy flag can't be read through the backpack, so the driver sleeps for
// the worst case execution time documented in the datasheet after every
// command.
//
// # Datasheet
//
// https://www.sparkfun.com/datasheets/LCD/HD44780.pdf
package hd44780

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
)

// Expander is the byte transport the display is wired to. Each call sets all
// 8 output pins. pcf8574.Dev implements it.
type Expander interface {
	WriteByte(value byte) error
}

var (
	// ErrInitFailed is returned by New when the power-on sequence couldn't
	// be sent. Callers should treat it as "no display present".
	ErrInitFailed = errors.New("hd44780: display init failed")
	// ErrWriteFailed is returned when an operation on an initialized display
	// couldn't be sent.
	ErrWriteFailed = errors.New("hd44780: display write failed")
)

// Expander pin assignment.
const (
	rsBit byte = 0x01
	rwBit byte = 0x02
	enBit byte = 0x04
	blBit byte = 0x08
)

const (
	cmdClear        byte = 0x01
	cmdHome         byte = 0x02
	cmdEntryMode    byte = 0x04
	cmdDisplayCtl   byte = 0x08
	cmdShift        byte = 0x10
	cmdFunctionSet  byte = 0x20
	cmdSetDDRAMAddr byte = 0x80

	entryIncrement byte = 0x02
	entryShift     byte = 0x01

	displayOn byte = 0x04
	cursorOn  byte = 0x02
	blinkOn   byte = 0x01

	shiftRight byte = 0x04

	fnTwoLines byte = 0x08
)

const (
	delayPowerOn   = 50 * time.Millisecond
	delayWake1     = 4500 * time.Microsecond
	delayWake2     = 150 * time.Microsecond
	delayEnable    = time.Microsecond
	delayCommand   = 50 * time.Microsecond
	delayClearHome = 2 * time.Millisecond
)

// The controller has 80 characters of DDRAM, split in two 40 character lines
// in 2 and 4 line modes.
const (
	maxColsOneLine   = 80
	maxColsMultiLine = 40
)

// rowOffsets is the DDRAM address of the first column of each row. 4 line
// displays are 2 line displays folded in half, hence the discontinuity.
var rowOffsets = [4]byte{0x00, 0x40, 0x14, 0x54}

// Opts holds optional settings for New.
type Opts struct {
	// Clock is used for all protocol delays. Defaults to the real clock.
	Clock clockwork.Clock
}

// Dev is an initialized HD44780 display.
//
// Implements periph.io/x/conn/v3/display.TextDisplay and
// display.DisplayBacklight. All methods are safe for concurrent use, and
// each one sends its complete byte sequence before another may start.
type Dev struct {
	mu         sync.Mutex
	x          Expander
	clock      clockwork.Clock
	rows       int
	cols       int
	backlight  byte
	displayCtl byte
	entryMode  byte
}

// New initializes the display wired to x and returns it ready for use.
//
// rows must be 1 to 4. cols must be 1 to 80 on a single row display and 1 to
// 40 otherwise. Any failure wraps ErrInitFailed.
func New(x Expander, rows, cols int, opts *Opts) (*Dev, error) {
	if x == nil {
		return nil, fmt.Errorf("%w: nil expander", ErrInitFailed)
	}
	maxCols := maxColsMultiLine
	if rows == 1 {
		maxCols = maxColsOneLine
	}
	if rows < 1 || rows > len(rowOffsets) || cols < 1 || cols > maxCols {
		return nil, fmt.Errorf("%w: invalid geometry %dx%d", ErrInitFailed, cols, rows)
	}
	clock := clockwork.NewRealClock()
	if opts != nil && opts.Clock != nil {
		clock = opts.Clock
	}
	dev := &Dev{
		x:          x,
		clock:      clock,
		rows:       rows,
		cols:       cols,
		backlight:  blBit,
		displayCtl: displayOn,
		entryMode:  entryIncrement,
	}
	if err := dev.init(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitFailed, err)
	}
	return dev, nil
}

// init runs the "initializing by instruction" sequence from figure 24 of the
// datasheet. The controller may be in 8-bit mode or halfway through a 4-bit
// transfer, so 0x3 is sent three times before committing to 4-bit mode.
func (dev *Dev) init() error {
	dev.clock.Sleep(delayPowerOn)
	wake := []struct {
		nibble byte
		delay  time.Duration
	}{
		{0x30, delayWake1},
		{0x30, delayWake2},
		{0x30, delayWake2},
		{0x20, delayWake2},
	}
	for _, w := range wake {
		if err := dev.writeNibble(w.nibble); err != nil {
			return err
		}
		dev.clock.Sleep(w.delay)
	}
	fn := cmdFunctionSet
	if dev.rows > 1 {
		fn |= fnTwoLines
	}
	for _, cmd := range []byte{fn, cmdDisplayCtl, cmdClear, cmdEntryMode | dev.entryMode, cmdDisplayCtl | dev.displayCtl} {
		if err := dev.command(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Clear blanks the display and moves the cursor home.
func (dev *Dev) Clear() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return wrap(dev.command(cmdClear))
}

// Home moves the cursor to row 0, column 0 and undoes any display shift.
func (dev *Dev) Home() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return wrap(dev.command(cmdHome))
}

// SetCursor moves the cursor to col, row. Both are 0 based and clamped to the
// display geometry.
func (dev *Dev) SetCursor(col, row int) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return wrap(dev.command(dev.ddramAddress(clamp(col, dev.cols), clamp(row, dev.rows))))
}

// Print writes text at the cursor, truncated or padded with spaces to exactly
// Cols() characters so that whatever was on the row before is overwritten.
// Text is folded to the character ROM first, see Fold.
func (dev *Dev) Print(text string) error {
	line := Fold(text)
	if len(line) > dev.cols {
		line = line[:dev.cols]
	}
	for len(line) < dev.cols {
		line = append(line, ' ')
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return wrap(dev.data(line))
}

// Write sends p to the display's data register as is.
func (dev *Dev) Write(p []byte) (int, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	for i, b := range p {
		if err := dev.send(b, rsBit); err != nil {
			return i, wrap(err)
		}
		dev.clock.Sleep(delayCommand)
	}
	return len(p), nil
}

// WriteString folds text to the character ROM and writes it at the cursor
// without padding.
func (dev *Dev) WriteString(text string) (int, error) {
	return dev.Write(Fold(text))
}

// AutoScroll shifts the display instead of the cursor on each write when
// enabled.
func (dev *Dev) AutoScroll(enabled bool) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	mode := dev.entryMode &^ entryShift
	if enabled {
		mode |= entryShift
	}
	if err := dev.command(cmdEntryMode | mode); err != nil {
		return wrap(err)
	}
	dev.entryMode = mode
	return nil
}

// Cursor sets the cursor mode. You can pass multiple arguments.
// Cursor(CursorOff, CursorUnderline)
func (dev *Dev) Cursor(modes ...display.CursorMode) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	ctl := dev.displayCtl &^ (cursorOn | blinkOn)
	for _, mode := range modes {
		switch mode {
		case display.CursorOff:
			ctl &^= cursorOn | blinkOn
		case display.CursorUnderline:
			ctl |= cursorOn
		case display.CursorBlink, display.CursorBlock:
			ctl |= blinkOn
		default:
			return fmt.Errorf("hd44780: unexpected cursor: %d: %w", mode, display.ErrInvalidCommand)
		}
	}
	return dev.setDisplayCtl(ctl)
}

// Display turns the display on or off. The DDRAM content is kept.
func (dev *Dev) Display(on bool) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	ctl := dev.displayCtl &^ displayOn
	if on {
		ctl |= displayOn
	}
	return dev.setDisplayCtl(ctl)
}

func (dev *Dev) setDisplayCtl(ctl byte) error {
	if err := dev.command(cmdDisplayCtl | ctl); err != nil {
		return wrap(err)
	}
	dev.displayCtl = ctl
	return nil
}

// Move moves the cursor forward or backward.
func (dev *Dev) Move(dir display.CursorDirection) error {
	val := cmdShift
	switch dir {
	case display.Backward:
	case display.Forward:
		val |= shiftRight
	default:
		return fmt.Errorf("hd44780: %w", display.ErrNotImplemented)
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return wrap(dev.command(val))
}

// MoveTo moves the cursor to row, col. Unlike SetCursor, values outside the
// display are rejected.
func (dev *Dev) MoveTo(row, col int) error {
	if row < dev.MinRow() || row >= dev.rows || col < dev.MinCol() || col >= dev.cols {
		return fmt.Errorf("hd44780: MoveTo(%d,%d) value out of range", row, col)
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return wrap(dev.command(dev.ddramAddress(col, row)))
}

// Backlight turns the backlight on for any non-zero intensity.
func (dev *Dev) Backlight(intensity display.Intensity) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	bl := byte(0)
	if intensity > 0 {
		bl = blBit
	}
	if err := dev.x.WriteByte(bl); err != nil {
		return wrap(err)
	}
	dev.backlight = bl
	return nil
}

// Halt clears the display. The expander is left to its owner.
func (dev *Dev) Halt() error {
	return dev.Clear()
}

// Cols returns the number of columns the display supports.
func (dev *Dev) Cols() int {
	return dev.cols
}

// Rows returns the number of rows the display supports.
func (dev *Dev) Rows() int {
	return dev.rows
}

// MinCol returns the min column position.
func (dev *Dev) MinCol() int {
	return 0
}

// MinRow returns the min row position.
func (dev *Dev) MinRow() int {
	return 0
}

func (dev *Dev) String() string {
	return fmt.Sprintf("HD44780::%v - Rows: %d, Cols: %d", dev.x, dev.rows, dev.cols)
}

func (dev *Dev) ddramAddress(col, row int) byte {
	return cmdSetDDRAMAddr | (rowOffsets[row] + byte(col))
}

// command sends cmd to the instruction register and waits for it to execute.
func (dev *Dev) command(cmd byte) error {
	if err := dev.send(cmd, 0); err != nil {
		return err
	}
	if cmd == cmdClear || cmd == cmdHome {
		dev.clock.Sleep(delayClearHome)
	} else {
		dev.clock.Sleep(delayCommand)
	}
	return nil
}

func (dev *Dev) data(p []byte) error {
	for _, b := range p {
		if err := dev.send(b, rsBit); err != nil {
			return err
		}
		dev.clock.Sleep(delayCommand)
	}
	return nil
}

// send transfers v high nibble first. rs selects the data register.
func (dev *Dev) send(v, rs byte) error {
	if err := dev.writeNibble((v & 0xf0) | rs); err != nil {
		return err
	}
	return dev.writeNibble(((v << 4) & 0xf0) | rs)
}

// writeNibble latches the upper 4 bits of b with a pulse on Enable. R/W is
// always low.
func (dev *Dev) writeNibble(b byte) error {
	b = (b | dev.backlight) &^ rwBit
	if err := dev.x.WriteByte(b | enBit); err != nil {
		return err
	}
	dev.clock.Sleep(delayEnable)
	if err := dev.x.WriteByte(b &^ enBit); err != nil {
		return err
	}
	dev.clock.Sleep(delayEnable)
	return nil
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v > n-1 {
		return n - 1
	}
	return v
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrWriteFailed, err)
}

var _ display.TextDisplay = &Dev{}
var _ display.DisplayBacklight = &Dev{}
var _ conn.Resource = &Dev{}
