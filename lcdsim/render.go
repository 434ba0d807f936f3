// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcdsim

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"strconv"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

var (
	panelOn  = color.NRGBA{0x9a, 0xc8, 0x3a, 0xff}
	panelOff = color.NRGBA{0x2e, 0x3b, 0x16, 0xff}
	ink      = color.NRGBA{0x10, 0x20, 0x10, 0xff}
)

// NewTerminal returns stdout wrapped so ANSI color codes work on every OS.
func NewTerminal() io.Writer {
	return colorable.NewColorableStdout()
}

// Render draws the screen to w, one line per row framed by the panel color.
// The cursor is moved back up afterward so that successive calls redraw in
// place.
func (b *Bus) Render(w io.Writer) error {
	b.mu.Lock()
	lines := b.lines()
	on := b.displayOn
	bl := b.backlight
	b.mu.Unlock()

	frame := panelOff
	if bl {
		frame = panelOn
	}
	edge := ansi256.Default.Block(frame)

	// This code is designed to minimize the amount of memory allocated per call.
	var buf bytes.Buffer
	for _, line := range lines {
		_, _ = buf.WriteString("\r\033[0m")
		_, _ = buf.WriteString(edge)
		if !bl {
			_, _ = buf.WriteString("\033[2m")
		}
		_ = buf.WriteByte(' ')
		for i := 0; i < len(line); i++ {
			c := line[i]
			if !on {
				c = ' '
			}
			_ = buf.WriteByte(printable(c))
		}
		_, _ = buf.WriteString(" \033[0m")
		_, _ = buf.WriteString(edge)
		_, _ = buf.WriteString("\033[0m\n")
	}
	// Move back to the first line.
	_, _ = buf.WriteString("\033[" + strconv.Itoa(len(lines)) + "A")
	_, err := buf.WriteTo(w)
	return err
}

var monoFont = sync.OnceValues(func() (*truetype.Font, error) {
	return truetype.Parse(gomono.TTF)
})

// Image renders the screen as a picture of the panel. scale is the size of a
// character cell relative to the 5x8 dots of the real thing.
func (b *Bus) Image(scale int) (image.Image, error) {
	if scale < 1 {
		scale = 1
	}
	f, err := monoFont()
	if err != nil {
		return nil, err
	}
	face := truetype.NewFace(f, &truetype.Options{Size: float64(8 * scale), DPI: 72, Hinting: font.HintingFull})
	defer face.Close()

	b.mu.Lock()
	lines := b.lines()
	on := b.displayOn
	bl := b.backlight
	b.mu.Unlock()

	cellW := 6 * scale
	cellH := 10 * scale
	margin := 2 * cellW
	w := 2*margin + len(lines[0])*cellW
	h := 2*margin + len(lines)*cellH

	dc := gg.NewContext(w, h)
	if bl {
		dc.SetColor(panelOn)
	} else {
		dc.SetColor(panelOff)
	}
	dc.Clear()
	if !on {
		return dc.Image(), nil
	}
	dc.SetFontFace(face)
	dc.SetColor(ink)
	for row, line := range lines {
		y := float64(margin + row*cellH + cellH/2)
		for col := 0; col < len(line); col++ {
			x := float64(margin + col*cellW + cellW/2)
			dc.DrawStringAnchored(string(rune(printable(line[col]))), x, y, 0.5, 0.5)
		}
	}
	return dc.Image(), nil
}

// SavePNG writes Image(scale) to path.
func (b *Bus) SavePNG(path string, scale int) error {
	img, err := b.Image(scale)
	if err != nil {
		return err
	}
	return gg.SavePNG(path, img)
}

// printable maps character ROM codes without an ASCII equivalent to '?'.
func printable(c byte) byte {
	if c < 0x20 || c >= 0x7f {
		return '?'
	}
	return c
}
