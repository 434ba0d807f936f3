// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcdsim

import (
	"bytes"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pulse returns the expander bytes latching the upper nibble of v.
func pulse(v, rs byte) []byte {
	b := (v & 0xf0) | rs | blBit
	return []byte{b | enBit, b}
}

func send(v, rs byte) []byte {
	return append(pulse(v, rs), pulse(v<<4, rs)...)
}

// boot returns the power-on sequence for a 2 line display.
func boot() []byte {
	var out []byte
	for range 3 {
		out = append(out, pulse(0x30, 0)...)
	}
	out = append(out, pulse(0x20, 0)...)
	for _, cmd := range []byte{0x28, 0x08, 0x01, 0x06, 0x0c} {
		out = append(out, send(cmd, 0)...)
	}
	return out
}

func text(s string) []byte {
	var out []byte
	for i := 0; i < len(s); i++ {
		out = append(out, send(s[i], rsBit)...)
	}
	return out
}

func TestPowerOnState(t *testing.T) {
	b := New(2, 16)
	assert.False(t, b.FourBit())
	assert.False(t, b.DisplayOn())
	assert.False(t, b.Backlight())
	assert.Equal(t, []string{strings.Repeat(" ", 16), strings.Repeat(" ", 16)}, b.Lines())
	assert.True(t, strings.HasPrefix(b.String(), "lcdsim"))
	assert.NotEqual(t, b.String(), New(2, 16).String())
}

func TestBoot(t *testing.T) {
	b := New(2, 16)
	b.Record()
	require.NoError(t, b.Tx(0x27, boot(), nil))
	assert.True(t, b.FourBit())
	assert.True(t, b.DisplayOn())
	assert.True(t, b.Backlight())
	assert.Equal(t, byte(0), b.Address())
	assert.Len(t, b.Writes(), len(boot()))
}

func TestWritesKeptOnlyWhenRecording(t *testing.T) {
	b := New(2, 16)
	require.NoError(t, b.Tx(0x27, boot(), nil))
	assert.Empty(t, b.Writes())
	assert.Equal(t, uint64(len(boot())), b.Written())

	b.Record()
	require.NoError(t, b.Tx(0x27, text("Hi"), nil))
	assert.Equal(t, text("Hi"), b.Writes())
	assert.Equal(t, uint64(len(boot())+len(text("Hi"))), b.Written())
}

func TestResize(t *testing.T) {
	b := New(2, 16)
	require.NoError(t, b.Tx(0x27, boot(), nil))
	require.NoError(t, b.Tx(0x27, text("Hello"), nil))

	gen := b.Generation()
	b.Resize(4, 20)
	assert.Greater(t, b.Generation(), gen)
	rows, cols := b.Size()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 20, cols)
	lines := b.Lines()
	require.Len(t, lines, 4)
	assert.Equal(t, "Hello               ", lines[0])

	gen = b.Generation()
	b.Resize(4, 20)
	assert.Equal(t, gen, b.Generation())

	b.Resize(9, 500)
	rows, cols = b.Size()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 80, cols)
}

func TestWriteText(t *testing.T) {
	b := New(2, 16)
	require.NoError(t, b.Tx(0x27, boot(), nil))
	require.NoError(t, b.Tx(0x27, text("Hello"), nil))
	require.NoError(t, b.Tx(0x27, send(0xc3, 0), nil))
	require.NoError(t, b.Tx(0x27, text("World"), nil))
	assert.Equal(t, []string{"Hello           ", "   World        "}, b.Lines())
	assert.Equal(t, byte(0x48), b.Address())

	gen := b.Generation()
	require.NoError(t, b.Tx(0x27, send(0x01, 0), nil))
	assert.Greater(t, b.Generation(), gen)
	assert.Equal(t, []string{strings.Repeat(" ", 16), strings.Repeat(" ", 16)}, b.Lines())
}

func TestLineWrap(t *testing.T) {
	b := New(2, 16)
	require.NoError(t, b.Tx(0x27, boot(), nil))
	require.NoError(t, b.Tx(0x27, send(0x80|0x27, 0), nil))
	require.NoError(t, b.Tx(0x27, text("ab"), nil))
	// 'a' lands at the end of the first line, 'b' at the start of the second.
	assert.Equal(t, "b               ", b.Lines()[1])
	assert.Equal(t, byte(0x41), b.Address())
}

func TestFourLineOffsets(t *testing.T) {
	b := New(4, 20)
	require.NoError(t, b.Tx(0x27, boot(), nil))
	for row, base := range rowOffsets {
		require.NoError(t, b.Tx(0x27, send(0x80|base, 0), nil))
		require.NoError(t, b.Tx(0x27, text(string(rune('0'+row))), nil))
	}
	lines := b.Lines()
	for row := range lines {
		assert.Equal(t, byte('0'+row), lines[row][0])
	}
}

func TestFail(t *testing.T) {
	b := New(2, 16)
	b.Record()
	errBus := errors.New("nack")
	b.Fail(errBus)
	assert.ErrorIs(t, b.Tx(0x27, []byte{0x08}, nil), errBus)
	assert.Empty(t, b.Writes())
	assert.Zero(t, b.Written())
	b.Fail(nil)
	require.NoError(t, b.Tx(0x27, []byte{0x08}, nil))
	assert.Error(t, b.Tx(0x27, nil, make([]byte, 1)))
	assert.NoError(t, b.SetSpeed(0))
}

func TestRender(t *testing.T) {
	b := New(2, 16)
	require.NoError(t, b.Tx(0x27, boot(), nil))
	require.NoError(t, b.Tx(0x27, text("Hello"), nil))
	var buf bytes.Buffer
	require.NoError(t, b.Render(&buf))
	out := buf.String()
	assert.Contains(t, out, " Hello           ")
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.True(t, strings.HasSuffix(out, "\033[2A"))
}

func TestSavePNG(t *testing.T) {
	b := New(2, 16)
	require.NoError(t, b.Tx(0x27, boot(), nil))
	require.NoError(t, b.Tx(0x27, text("Hello"), nil))

	img, err := b.Image(2)
	require.NoError(t, err)
	assert.Equal(t, 2*2*12+16*12, img.Bounds().Dx())
	assert.Equal(t, 2*2*12+2*20, img.Bounds().Dy())

	path := filepath.Join(t.TempDir(), "lcd.png")
	require.NoError(t, b.SavePNG(path, 2))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}
