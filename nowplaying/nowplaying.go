// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package nowplaying turns a player state snapshot into the lines shown on a
// character display.
package nowplaying

import (
	"math"
	"strconv"
	"strings"
)

// IdleText is shown on the first row whenever nothing is playing.
const IdleText = "Volumio Idle"

// StatusPlay is the Status of a snapshot taken during playback.
const StatusPlay = "play"

// Snapshot is the part of Volumio's player state the display uses. Missing
// fields are zero values, never an error.
type Snapshot struct {
	Status string `json:"status"`
	Artist string `json:"artist"`
	Title  string `json:"title"`
	Album  string `json:"album"`
	// Seek is the elapsed time in milliseconds.
	Seek float64 `json:"seek"`
	// Duration is the track length in seconds.
	Duration float64 `json:"duration"`
}

// Playing reports whether the player is playing.
func (s Snapshot) Playing() bool {
	return s.Status == StatusPlay
}

// Line is the text for one display row.
type Line struct {
	Row  int
	Text string
}

// Format returns what rows 0 and 1 of a cols x rows display show for s.
//
// While playing, row 0 is "artist - title" and row 1 the elapsed and total
// time in whole seconds. Otherwise row 0 is IdleText and row 1 is blanked.
// Row 1 is left out on single row displays and rows past 1 are never
// touched. Text is cut to cols characters.
func Format(s Snapshot, cols, rows int) []Line {
	if cols < 1 {
		cols = 0
	}
	var top, bottom string
	if s.Playing() {
		top = s.Artist + " - " + s.Title
		bottom = strconv.FormatInt(seconds(s.Seek/1000), 10) + "s/" + strconv.FormatInt(seconds(s.Duration), 10) + "s"
	} else {
		top = IdleText
		bottom = strings.Repeat(" ", cols)
	}
	lines := []Line{{Row: 0, Text: truncate(top, cols)}}
	if rows > 1 {
		lines = append(lines, Line{Row: 1, Text: truncate(bottom, cols)})
	}
	return lines
}

// seconds floors v. Negative, NaN and infinite values, and values too large
// for an int64, count as 0.
func seconds(v float64) int64 {
	if math.IsNaN(v) || v < 0 || v >= math.MaxInt64 {
		return 0
	}
	return int64(math.Floor(v))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
