// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pcf8574 provides the byte transport for an HD44780 LCD backpack
// built on the TI/NXP PCF8574 I2C I/O Expander.
//
// The PCF8574 doesn't implement a register architecture. Every write of one
// byte sets all 8 output pins at once, and there is no read back or
// acknowledgement beyond the I2C ACK. A Dev therefore exposes a single
// operation, WriteByte, and each call is exactly one bus transaction.
//
// # Datasheet
//
// https://www.ti.com/lit/ds/symlink/pcf8574.pdf
//
// A good description of the I2C LCD backpack wiring can be found here:
//
// https://www.handsontec.com/dataspecs/I2C_2004_LCD.pdf
package pcf8574

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
)

// DefaultAddress is the factory address of most LCD1602/LCD2004 backpacks.
// Backpacks built on the PCF8574A answer at 0x3f instead.
const DefaultAddress uint16 = 0x27

const maxAddress uint16 = 0x7f

var (
	// ErrDeviceUnavailable is returned when the bus can't be opened or the
	// address can't be claimed.
	ErrDeviceUnavailable = errors.New("pcf8574: device unavailable")
	// ErrIO is returned when a write to the expander fails.
	ErrIO = errors.New("pcf8574: i/o failure")
	// ErrClosed is wrapped by ErrIO when writing to a closed Dev.
	ErrClosed = errors.New("pcf8574: closed")
)

// claims holds the bus+address pairs currently held open by a Dev.
var claims = struct {
	sync.Mutex
	held map[string]struct{}
}{held: map[string]struct{}{}}

// Dev is an open, exclusively held connection to one PCF8574.
type Dev struct {
	mu     sync.Mutex
	d      *i2c.Dev
	bus    io.Closer
	key    string
	closed bool
}

// Open opens the named I2C bus through the periph bus registry and binds it
// to address. An empty name selects the first bus found. The returned Dev
// owns the bus and closes it in Close.
//
// host.Init() must have been called before.
func Open(busName string, address uint16) (*Dev, error) {
	if address > maxAddress {
		return nil, fmt.Errorf("%w: address 0x%x is not 7-bit", ErrDeviceUnavailable, address)
	}
	bc, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	dev, err := claim(bc, address)
	if err != nil {
		_ = bc.Close()
		return nil, err
	}
	dev.bus = bc
	return dev, nil
}

// New binds an already open bus to address. The caller keeps ownership of
// bus; Close releases the address only.
func New(bus i2c.Bus, address uint16) (*Dev, error) {
	if bus == nil {
		return nil, fmt.Errorf("%w: nil bus", ErrDeviceUnavailable)
	}
	if address > maxAddress {
		return nil, fmt.Errorf("%w: address 0x%x is not 7-bit", ErrDeviceUnavailable, address)
	}
	return claim(bus, address)
}

func claim(bus i2c.Bus, address uint16) (*Dev, error) {
	key := fmt.Sprintf("%s@%#x", bus.String(), address)
	claims.Lock()
	defer claims.Unlock()
	if _, ok := claims.held[key]; ok {
		return nil, fmt.Errorf("%w: %s already in use", ErrDeviceUnavailable, key)
	}
	claims.held[key] = struct{}{}
	return &Dev{d: &i2c.Dev{Bus: bus, Addr: address}, key: key}, nil
}

// WriteByte sets the 8 output pins of the expander to value.
func (dev *Dev) WriteByte(value byte) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.closed {
		return fmt.Errorf("%w: %w", ErrIO, ErrClosed)
	}
	if err := dev.d.Tx([]byte{value}, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// Close releases the address and, when the Dev was created by Open, the bus.
// Calling Close more than once is a no-op.
func (dev *Dev) Close() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.closed {
		return nil
	}
	dev.closed = true
	claims.Lock()
	delete(claims.held, dev.key)
	claims.Unlock()
	if dev.bus != nil {
		if err := dev.bus.Close(); err != nil {
			return fmt.Errorf("pcf8574: %w", err)
		}
	}
	return nil
}

// Halt implements conn.Resource. It is the same as Close.
func (dev *Dev) Halt() error {
	return dev.Close()
}

// Addr returns the 7-bit address the Dev is bound to.
func (dev *Dev) Addr() uint16 {
	return dev.d.Addr
}

func (dev *Dev) String() string {
	return fmt.Sprintf("PCF8574_%x@%s", dev.d.Addr, dev.d.Bus)
}

var _ conn.Resource = &Dev{}
var _ io.ByteWriter = &Dev{}
