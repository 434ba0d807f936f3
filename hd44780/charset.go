// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hd44780

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold converts text to bytes of the A00 (Japanese) character ROM that most
// HD44780 modules ship with. Accents are stripped ("Beyoncé" becomes
// "Beyonce"), control characters become spaces and anything else outside
// printable ASCII becomes '?'. One rune of the folded text is one byte of the
// result.
func Fold(text string) []byte {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}
	out := make([]byte, 0, len(folded))
	for _, r := range folded {
		switch {
		case r < 0x20 || r == 0x7f:
			out = append(out, ' ')
		case r < 0x7f:
			out = append(out, byte(r))
		default:
			out = append(out, '?')
		}
	}
	return out
}
