// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package plugin keeps an LCD in sync with the player across the Volumio
// plugin lifecycle.
//
// The Plugin owns the display. It is opened on start and whenever the
// settings change, and released on stop. A missing or failing display is
// never fatal: the plugin logs it and carries on without one.
package plugin

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/i2c"

	"github.com/GermanBionicSystems/volumio-lcd/config"
	"github.com/GermanBionicSystems/volumio-lcd/hd44780"
	"github.com/GermanBionicSystems/volumio-lcd/internal/syncutil"
	"github.com/GermanBionicSystems/volumio-lcd/lcdsim"
	"github.com/GermanBionicSystems/volumio-lcd/nowplaying"
	"github.com/GermanBionicSystems/volumio-lcd/pcf8574"
)

const (
	// ReadyText is shown when the display is opened on start.
	ReadyText = "Volumio Ready"
	// SavedText is shown when the display is reopened with new settings.
	SavedText = "Config Saved"
)

// ReopenInterval is the minimum time between two attempts to bring back a
// display that failed mid-write.
const ReopenInterval = 5 * time.Second

// Display is the part of the driver the plugin uses.
type Display interface {
	Clear() error
	SetCursor(col, row int) error
	Print(text string) error
	// Close clears the display and releases the transport.
	Close() error
}

// Opener opens the display described by the settings.
type Opener func(config.Values) (Display, error)

// OpenI2C returns an Opener for a PCF8574 backpack on the named I2C bus.
func OpenI2C(busName string, opts *hd44780.Opts) Opener {
	return func(v config.Values) (Display, error) {
		b, err := hd44780.OpenBackpack(busName, v.Address(), v.Rows, v.Cols, opts)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// OpenBus returns an Opener for a PCF8574 backpack on an already open bus.
func OpenBus(bus i2c.Bus, opts *hd44780.Opts) Opener {
	return func(v config.Values) (Display, error) {
		b, err := hd44780.NewBackpack(bus, v.Address(), v.Rows, v.Cols, opts)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// OpenEmulator returns an Opener for the emulated backpack sim. The emulated
// module is resized to the settings before each open.
func OpenEmulator(sim *lcdsim.Bus, opts *hd44780.Opts) Opener {
	open := OpenBus(sim, opts)
	return func(v config.Values) (Display, error) {
		if rows, cols := sim.Size(); rows != v.Rows || cols != v.Cols {
			log.Info().Msgf("resizing emulated LCD from %dx%d to %dx%d", cols, rows, v.Cols, v.Rows)
			sim.Resize(v.Rows, v.Cols)
		}
		return open(v)
	}
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithClock sets the clock used to pace display reopening.
func WithClock(clock clockwork.Clock) Option {
	return func(p *Plugin) {
		p.clock = clock
	}
}

// Plugin drives the display. All methods are safe for concurrent use and
// are serialized, so the display only ever sees one caller.
type Plugin struct {
	store *config.Store
	open  Opener
	clock clockwork.Clock

	mu   syncutil.Mutex
	vals config.Values
	disp Display
	// lost is set when the display was torn down after a write failure,
	// lastOpen is when it was last opened or tried.
	lost     bool
	lastOpen time.Time
}

// New returns a Plugin reading its settings from store and opening the
// display with open. Nothing is opened until OnStart.
func New(store *config.Store, open Opener, opts ...Option) *Plugin {
	p := &Plugin{
		store: store,
		open:  open,
		clock: clockwork.NewRealClock(),
		vals:  store.Values(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnVolumioStart loads the settings. A broken settings file is logged and
// the defaults are used.
func (p *Plugin) OnVolumioStart() {
	vals, err := p.store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("using default LCD settings")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vals = vals
}

// OnStart opens the display and shows ReadyText.
func (p *Plugin) OnStart() {
	p.mu.Lock()
	defer p.mu.Unlock()
	log.Info().Msgf("starting LCD with %+v", p.vals)
	p.start(ReadyText)
}

// OnStop clears the display and releases it.
func (p *Plugin) OnStop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stop()
}

// OnRestart is OnStop followed by OnStart.
func (p *Plugin) OnRestart() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stop()
	p.start(ReadyText)
}

// SaveConfig stores the settings posted by the plugin UI, then reopens the
// display with them and shows SavedText. Only a failure to parse or persist
// the settings is returned; a display that can't be opened is logged.
func (p *Plugin) SaveConfig(form map[string]any) error {
	vals, err := config.ParseForm(form)
	if err != nil {
		return fmt.Errorf("plugin: %w", err)
	}
	if err := p.store.Save(vals); err != nil {
		return fmt.Errorf("plugin: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconfigure(p.store.Values(), SavedText)
	return nil
}

// Reload rereads the settings file and reopens the display when the
// settings differ from the ones in use.
func (p *Plugin) Reload() {
	vals, err := p.store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("reloading LCD settings")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if vals == p.vals {
		return
	}
	p.reconfigure(vals, ReadyText)
}

// Values returns the settings in use.
func (p *Plugin) Values() config.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vals
}

// Attached reports whether a display is open.
func (p *Plugin) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disp != nil
}

// OnStateChange shows s. It does nothing when no display is open, except
// after a write failure, when the display is reopened at most once every
// ReopenInterval.
func (p *Plugin) OnStateChange(s nowplaying.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disp == nil {
		if !p.lost || p.clock.Since(p.lastOpen) < ReopenInterval {
			return
		}
		log.Info().Msg("reopening LCD")
		if !p.attach() {
			return
		}
		p.lost = false
	}
	for _, l := range nowplaying.Format(s, p.vals.Cols, p.vals.Rows) {
		if err := p.disp.SetCursor(0, l.Row); err != nil {
			p.drop(err)
			return
		}
		if err := p.disp.Print(l.Text); err != nil {
			p.drop(err)
			return
		}
	}
}

func (p *Plugin) reconfigure(vals config.Values, msg string) {
	log.Info().Msgf("reconfiguring LCD with %+v", vals)
	p.stop()
	p.vals = vals
	p.start(msg)
}

// start opens the display and shows msg on the first row.
func (p *Plugin) start(msg string) {
	if p.disp != nil {
		p.stop()
	}
	p.lost = false
	if !p.attach() {
		return
	}
	if err := p.disp.Clear(); err != nil {
		p.drop(err)
		return
	}
	if err := p.disp.SetCursor(0, 0); err != nil {
		p.drop(err)
		return
	}
	if err := p.disp.Print(msg); err != nil {
		p.drop(err)
	}
}

// attach opens the display. Failures are logged and leave it absent.
func (p *Plugin) attach() bool {
	p.lastOpen = p.clock.Now()
	d, err := p.open(p.vals)
	switch {
	case err == nil:
		p.disp = d
		log.Info().Msgf("LCD ready: %s", d)
		return true
	case errors.Is(err, pcf8574.ErrDeviceUnavailable):
		log.Warn().Err(err).Msgf("no LCD at 0x%02x, continuing without display", p.vals.I2CAddress)
	case errors.Is(err, hd44780.ErrInitFailed):
		log.Warn().Err(err).Msg("LCD init failed, continuing without display")
	default:
		log.Warn().Err(err).Msg("opening LCD failed, continuing without display")
	}
	p.disp = nil
	return false
}

func (p *Plugin) stop() {
	p.lost = false
	if p.disp == nil {
		return
	}
	if err := p.disp.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing LCD")
	}
	p.disp = nil
}

// drop tears the display down after a write failure. It is reopened on a
// later state change.
func (p *Plugin) drop(err error) {
	log.Warn().Err(err).Msg("LCD write failed, dropping display")
	if cerr := p.disp.Close(); cerr != nil {
		log.Debug().Err(cerr).Msg("error closing failed LCD")
	}
	p.disp = nil
	p.lost = true
}
