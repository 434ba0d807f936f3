// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config stores the display settings: I2C address and geometry.
//
// The settings live in a small JSON file shared with the Volumio plugin UI:
//
//	{
//	  "i2cAddress": 39,
//	  "cols": 16,
//	  "rows": 2
//	}
//
// Missing or zero fields take their default.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/GermanBionicSystems/volumio-lcd/internal/syncutil"
)

// FileName is the name of the settings file in the plugin's data directory.
const FileName = "config.json"

// Values are the display settings.
type Values struct {
	I2CAddress int `json:"i2cAddress" validate:"min=0,max=127"`
	Cols       int `json:"cols" validate:"min=1,max=40"`
	Rows       int `json:"rows" validate:"min=1,max=4"`
}

// Defaults fit the ubiquitous 16x2 module on a PCF8574 backpack.
var Defaults = Values{
	I2CAddress: 0x27,
	Cols:       16,
	Rows:       2,
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Address returns the I2C address as used by the transport.
func (v Values) Address() uint16 {
	return uint16(v.I2CAddress)
}

// withDefaults replaces zero fields by their default.
func (v Values) withDefaults() Values {
	if v.I2CAddress == 0 {
		v.I2CAddress = Defaults.I2CAddress
	}
	if v.Cols == 0 {
		v.Cols = Defaults.Cols
	}
	if v.Rows == 0 {
		v.Rows = Defaults.Rows
	}
	return v
}

// Validate checks the values are usable by the display driver.
func (v Values) Validate() error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Store is the settings file. It is safe for concurrent use.
type Store struct {
	fs   afero.Fs
	path string
	mu   syncutil.Mutex
	vals Values
}

// NewStore returns a Store for the file at path on fs holding Defaults until
// Load is called.
func NewStore(fs afero.Fs, path string) *Store {
	return &Store{fs: fs, path: path, vals: Defaults}
}

// Path returns the location of the settings file.
func (s *Store) Path() string {
	return s.path
}

// Values returns the current settings.
func (s *Store) Values() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vals
}

// Load reads the settings file. A missing file yields Defaults. A file that
// can't be parsed or holds invalid values also yields Defaults, and the
// error, which callers are expected to log and otherwise ignore.
func (s *Store) Load() (Values, error) {
	vals, err := s.read()
	if err != nil {
		vals = Defaults
	}
	s.mu.Lock()
	s.vals = vals
	s.mu.Unlock()
	return vals, err
}

func (s *Store) read() (Values, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug().Msgf("no config at %s, using defaults", s.path)
		return Defaults, nil
	} else if err != nil {
		return Values{}, fmt.Errorf("config: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Values{}, fmt.Errorf("config: parsing %s: %w", s.path, err)
	}
	vals, err := decode(raw)
	if err != nil {
		return Values{}, fmt.Errorf("config: decoding %s: %w", s.path, err)
	}
	vals = vals.withDefaults()
	if err := vals.Validate(); err != nil {
		return Values{}, err
	}
	return vals, nil
}

// Save validates v and writes it to the settings file, replacing it
// atomically.
func (s *Store) Save(v Values) error {
	v = v.withDefaults()
	if err := v.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("config: %w", err)
	}
	s.vals = v
	log.Info().Msgf("config saved: %+v", v)
	return nil
}

func decode(raw map[string]any) (Values, error) {
	var v Values
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(numberHook),
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           &v,
	})
	if err != nil {
		return Values{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Values{}, err
	}
	return v, nil
}
