// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hd44780

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"

	"github.com/GermanBionicSystems/volumio-lcd/pcf8574"
)

// Backpack is a display together with the PCF8574 backpack it is soldered
// to. It owns the expander and releases it in Close.
//
// # Product Information
//
// https://www.handsontec.com/dataspecs/I2C_2004_LCD.pdf
type Backpack struct {
	*Dev
	x *pcf8574.Dev

	closeMu sync.Mutex
	closed  bool
}

// OpenBackpack opens the named I2C bus and initializes the display at
// address. Errors wrap pcf8574.ErrDeviceUnavailable when the bus or address
// can't be claimed and ErrInitFailed when the display doesn't take the
// power-on sequence.
func OpenBackpack(busName string, address uint16, rows, cols int, opts *Opts) (*Backpack, error) {
	x, err := pcf8574.Open(busName, address)
	if err != nil {
		return nil, err
	}
	return newBackpack(x, rows, cols, opts)
}

// NewBackpack is like OpenBackpack on an already open bus, which stays owned
// by the caller.
func NewBackpack(bus i2c.Bus, address uint16, rows, cols int, opts *Opts) (*Backpack, error) {
	x, err := pcf8574.New(bus, address)
	if err != nil {
		return nil, err
	}
	return newBackpack(x, rows, cols, opts)
}

func newBackpack(x *pcf8574.Dev, rows, cols int, opts *Opts) (*Backpack, error) {
	dev, err := New(x, rows, cols, opts)
	if err != nil {
		_ = x.Close()
		return nil, err
	}
	return &Backpack{Dev: dev, x: x}, nil
}

// Close clears the display and releases the expander. The expander is
// released even when the clear fails. Calling Close more than once is a
// no-op.
func (b *Backpack) Close() error {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return errors.Join(b.Dev.Clear(), b.x.Close())
}

// Halt implements conn.Resource. It is the same as Close.
func (b *Backpack) Halt() error {
	return b.Close()
}

func (b *Backpack) String() string {
	return fmt.Sprintf("HD44780::%s - Rows: %d, Cols: %d", b.x, b.Rows(), b.Cols())
}
