// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package volumiolcd shows Volumio's now-playing state on an HD44780
// character LCD behind a PCF8574 I2C backpack.
//
// The pieces are layered bottom-up: pcf8574 moves bytes to the expander,
// hd44780 speaks the controller's 4-bit protocol over it, nowplaying turns a
// player state into display lines, and plugin ties them to the Volumio
// lifecycle. The daemon in cmd/volumio-lcd follows a player through package
// volumio. lcdsim emulates the whole backpack for tests and for running
// without hardware.
package volumiolcd
