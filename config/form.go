// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"math"
	"reflect"
	"strconv"
	"strings"
)

// ParseForm converts the settings posted by the plugin UI. Values may be
// numbers or strings, the address as "0x27" or "39". Anything that doesn't
// read as a number, and zero, becomes the default. The result is not
// validated, Store.Save does that.
func ParseForm(data map[string]any) (Values, error) {
	v, err := decode(data)
	if err != nil {
		return Defaults, err
	}
	return v.withDefaults(), nil
}

// numberHook is a mapstructure decode hook for values destined to int
// fields. Strings are read as numbers: hexadecimal needs a 0x prefix,
// everything else is decimal, trailing garbage is ignored and a string
// without leading digits reads as 0. Floats are truncated; NaN, infinities
// and floats outside the int32 range read as 0.
func numberHook(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Int {
		return data, nil
	}
	switch from.Kind() {
	case reflect.String:
		return parseNumber(reflect.ValueOf(data).String()), nil
	case reflect.Float32, reflect.Float64:
		f := reflect.ValueOf(data).Float()
		if math.IsNaN(f) || f > math.MaxInt32 || f < math.MinInt32 {
			return 0, nil
		}
		return int(f), nil
	}
	return data, nil
}

func parseNumber(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else {
		s = strings.TrimPrefix(s, "+")
	}
	base := 10
	if strings.HasPrefix(s, "0x") {
		base = 16
		s = s[2:]
	}
	end := 0
	for end < len(s) && isDigit(s[end], base) {
		end++
	}
	n, err := strconv.ParseInt(s[:end], base, 32)
	if err != nil {
		return 0
	}
	if neg {
		n = -n
	}
	return int(n)
}

func isDigit(c byte, base int) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case base == 16 && c >= 'a' && c <= 'f':
		return true
	}
	return false
}

// Form returns v the way the plugin UI shows it: every field as a string,
// the address in hexadecimal.
func (v Values) Form() map[string]string {
	return map[string]string{
		"i2cAddress": "0x" + strconv.FormatInt(int64(v.I2CAddress), 16),
		"cols":       strconv.Itoa(v.Cols),
		"rows":       strconv.Itoa(v.Rows),
	}
}
