// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pcf8574

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestWriteByte(t *testing.T) {
	bus := &i2ctest.Record{}
	dev, err := New(bus, DefaultAddress)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	for _, b := range []byte{0x08, 0x3c, 0x38} {
		require.NoError(t, dev.WriteByte(b))
	}
	want := []i2ctest.IO{
		{Addr: DefaultAddress, W: []byte{0x08}},
		{Addr: DefaultAddress, W: []byte{0x3c}},
		{Addr: DefaultAddress, W: []byte{0x38}},
	}
	require.Len(t, bus.Ops, len(want))
	for i := range want {
		assert.Equal(t, want[i].Addr, bus.Ops[i].Addr)
		assert.Equal(t, want[i].W, bus.Ops[i].W)
	}
	assert.Equal(t, DefaultAddress, dev.Addr())
	assert.Contains(t, dev.String(), "PCF8574_27")
}

func TestWriteByteBusError(t *testing.T) {
	bus := &i2ctest.Playback{DontPanic: true}
	dev, err := New(bus, DefaultAddress)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	err = dev.WriteByte(0x08)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIO))
}

func TestClaimIsExclusive(t *testing.T) {
	bus := &i2ctest.Record{}
	first, err := New(bus, 0x3f)
	require.NoError(t, err)

	_, err = New(bus, 0x3f)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceUnavailable))

	// A different address on the same bus is fine.
	other, err := New(bus, 0x26)
	require.NoError(t, err)
	require.NoError(t, other.Close())

	require.NoError(t, first.Close())
	again, err := New(bus, 0x3f)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestCloseIsIdempotent(t *testing.T) {
	dev, err := New(&i2ctest.Record{}, 0x25)
	require.NoError(t, err)
	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())
	require.NoError(t, dev.Halt())

	err = dev.WriteByte(0x00)
	assert.True(t, errors.Is(err, ErrIO))
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestInvalidAddress(t *testing.T) {
	_, err := New(&i2ctest.Record{}, 0x80)
	assert.True(t, errors.Is(err, ErrDeviceUnavailable))

	_, err = Open("", 0x100)
	assert.True(t, errors.Is(err, ErrDeviceUnavailable))

	_, err = New(nil, DefaultAddress)
	assert.True(t, errors.Is(err, ErrDeviceUnavailable))
}

func TestOpenMissingBus(t *testing.T) {
	_, err := Open("/dev/i2c-does-not-exist", DefaultAddress)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceUnavailable))
}
