// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const cfgPath = "/data/plugins/user_interface/hd44780/config.json"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoadMissingFile(t *testing.T) {
	s := NewStore(afero.NewMemMapFs(), cfgPath)
	vals, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults, vals)
	assert.Equal(t, Defaults, s.Values())
	assert.Equal(t, cfgPath, s.Path())
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		want    Values
		wantErr bool
	}{
		{"full", `{"i2cAddress": 63, "cols": 20, "rows": 4}`, Values{0x3f, 20, 4}, false},
		{"partial", `{"cols": 20}`, Values{0x27, 20, 2}, false},
		{"zeroes", `{"i2cAddress": 0, "cols": 0, "rows": 0}`, Defaults, false},
		{"nulls", `{"i2cAddress": null, "cols": null}`, Defaults, false},
		{"empty object", `{}`, Defaults, false},
		{"hex string", `{"i2cAddress": "0x3f"}`, Values{0x3f, 16, 2}, false},
		{"decimal string", `{"i2cAddress": "39", "rows": "1"}`, Values{0x27, 16, 1}, false},
		{"extra keys", `{"cols": 16, "enabled": true}`, Defaults, false},
		{"garbage", `not json`, Defaults, true},
		{"too many rows", `{"rows": 8}`, Defaults, true},
		{"negative cols", `{"cols": -2}`, Defaults, true},
		{"address too large", `{"i2cAddress": 300}`, Defaults, true},
		{"wrong type", `{"cols": [1, 2]}`, Defaults, true},
		{"huge numbers", `{"cols": 1e300, "rows": -1e300}`, Defaults, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, cfgPath, []byte(tc.content), 0o600))
			s := NewStore(fs, cfgPath)
			vals, err := s.Load()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.want, vals)
			assert.Equal(t, tc.want, s.Values())
		})
	}
}

func TestSave(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewStore(fs, cfgPath)
	require.NoError(t, s.Save(Values{I2CAddress: 0x3f, Cols: 20, Rows: 4}))
	assert.Equal(t, Values{0x3f, 20, 4}, s.Values())

	data, err := afero.ReadFile(fs, cfgPath)
	require.NoError(t, err)
	var raw map[string]int
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, map[string]int{"i2cAddress": 0x3f, "cols": 20, "rows": 4}, raw)

	exists, err := afero.Exists(fs, cfgPath+".tmp")
	require.NoError(t, err)
	assert.False(t, exists)

	other := NewStore(fs, cfgPath)
	vals, err := other.Load()
	require.NoError(t, err)
	assert.Equal(t, Values{0x3f, 20, 4}, vals)
}

func TestSaveRejectsInvalid(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewStore(fs, cfgPath)
	assert.Error(t, s.Save(Values{Rows: 9}))
	assert.Error(t, s.Save(Values{I2CAddress: 0x80}))
	assert.Equal(t, Defaults, s.Values())
	exists, err := afero.Exists(fs, cfgPath)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSaveReadOnly(t *testing.T) {
	s := NewStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), cfgPath)
	assert.Error(t, s.Save(Defaults))
}

func TestParseForm(t *testing.T) {
	for _, tc := range []struct {
		name string
		form map[string]any
		want Values
	}{
		{"strings", map[string]any{"i2cAddress": "0x3F", "cols": "20", "rows": "4"}, Values{0x3f, 20, 4}},
		{"decimal address", map[string]any{"i2cAddress": "39", "cols": "16", "rows": "2"}, Values{39, 16, 2}},
		{"numbers", map[string]any{"i2cAddress": 63.0, "cols": 20, "rows": 4}, Values{0x3f, 20, 4}},
		{"padded", map[string]any{"i2cAddress": " 0x27 ", "cols": "16 chars", "rows": "2"}, Defaults},
		{"not numbers", map[string]any{"i2cAddress": "zz", "cols": "abc", "rows": ""}, Defaults},
		{"missing", map[string]any{}, Defaults},
		{"nil", nil, Defaults},
		{"negative", map[string]any{"rows": "-1"}, Values{0x27, 16, -1}},
		{"nan", map[string]any{"i2cAddress": math.NaN(), "cols": math.NaN(), "rows": 2.7}, Defaults},
		{"infinite", map[string]any{"i2cAddress": math.Inf(1), "cols": math.Inf(-1), "rows": 1e300}, Defaults},
		{"fractions", map[string]any{"cols": 20.9, "rows": float32(4.2)}, Values{0x27, 20, 4}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseForm(tc.form)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ParseForm(map[string]any{"cols": map[string]any{"a": 1}})
	assert.Error(t, err)
}

func TestParseNumber(t *testing.T) {
	for in, want := range map[string]int{
		"":      0,
		"0x":    0,
		"0x27":  0x27,
		"0X3f":  0x3f,
		"27":    27,
		"+5":    5,
		"-3":    -3,
		"12abc": 12,
		"abc":   0,
		"1e3":   1,
	} {
		assert.Equal(t, want, parseNumber(in), in)
	}
}

func TestAddress(t *testing.T) {
	assert.Equal(t, uint16(0x27), Defaults.Address())
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func() { calls.Add(1) })
	}()

	// Writes to other files are ignored; the watcher may not be registered
	// yet, so keep writing until the change is seen.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o600))
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(`{"cols": 20}`), 0o600)
		return calls.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch didn't return after cancel")
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", FileName), func() {})
	assert.Error(t, err)
}

func TestFormRoundTrip(t *testing.T) {
	v := Values{I2CAddress: 0x3f, Cols: 20, Rows: 4}
	assert.Equal(t, map[string]string{"i2cAddress": "0x3f", "cols": "20", "rows": "4"}, v.Form())

	form := map[string]any{}
	for k, s := range v.Form() {
		form[k] = s
	}
	got, err := ParseForm(form)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}
