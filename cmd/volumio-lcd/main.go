// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// volumio-lcd shows what Volumio is playing on an HD44780 character LCD
// connected through a PCF8574 I2C backpack.
//
// Settings are read from a JSON file, see package config, and the display
// is reopened whenever the file changes. With -emulate, the display is drawn
// in the terminal instead, which needs no hardware.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/volumio-lcd/config"
	"github.com/GermanBionicSystems/volumio-lcd/internal/logging"
	"github.com/GermanBionicSystems/volumio-lcd/lcdsim"
	"github.com/GermanBionicSystems/volumio-lcd/plugin"
	"github.com/GermanBionicSystems/volumio-lcd/volumio"
)

const defaultConfigDir = "/data/configuration/user_interface/hd44780"

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// envFlags maps flags to the environment variables they can be set from.
var envFlags = map[string]string{
	"bus":     "VOLUMIO_LCD_BUS",
	"config":  "VOLUMIO_LCD_CONFIG",
	"volumio": "VOLUMIO_LCD_URL",
	"log":     "VOLUMIO_LCD_LOG",
}

// loadEnv loads the .env file named by the -env flag of flags, then sets every
// flag in envFlags that wasn't given on the command line from its variable.
// Variables already in the environment win over the file. A missing file is
// only an error when -env was given explicitly.
func loadEnv(flags *flag.FlagSet) error {
	set := map[string]bool{}
	flags.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if f := flags.Lookup("env"); f != nil && f.Value.String() != "" {
		if err := godotenv.Load(f.Value.String()); err != nil && (set["env"] || !errors.Is(err, fs.ErrNotExist)) {
			return fmt.Errorf("loading %s: %w", f.Value, err)
		}
	}
	for name, key := range envFlags {
		v, ok := os.LookupEnv(key)
		if !ok || set[name] {
			continue
		}
		if err := flags.Set(name, v); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func run() error {
	flag.String("env", ".env", "file of VOLUMIO_LCD_* variables to load, empty for none")
	busName := flag.String("bus", "", "I2C bus to use, empty for the first one")
	cfgPath := flag.String("config", filepath.Join(defaultConfigDir, config.FileName), "settings file")
	baseURL := flag.String("volumio", volumio.DefaultURL, "Volumio base URL")
	logPath := flag.String("log", "", "rotating log file, empty to log to stderr only")
	debug := flag.Bool("debug", false, "enable debug logging")
	emulate := flag.Bool("emulate", false, "draw the display in the terminal instead of using I2C")
	snapshot := flag.String("snapshot", "", "with -emulate, write a PNG of the display to this file on every change")
	flag.Parse()
	if err := loadEnv(flag.CommandLine); err != nil {
		return err
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	if err := logging.Init(*logPath, *debug, console); err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	client, err := volumio.NewClient(*baseURL)
	if err != nil {
		return err
	}

	store := config.NewStore(afero.NewOsFs(), *cfgPath)
	var open plugin.Opener
	var sim *lcdsim.Bus
	if *emulate {
		vals, err := store.Load()
		if err != nil {
			log.Warn().Err(err).Msg("using default LCD settings")
		}
		sim = lcdsim.New(vals.Rows, vals.Cols)
		open = plugin.OpenEmulator(sim, nil)
	} else {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("initializing host drivers: %w", err)
		}
		open = plugin.OpenI2C(*busName, nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := plugin.New(store, open)
	p.OnVolumioStart()
	p.OnStart()
	defer p.OnStop()

	if s, err := client.State(ctx); err != nil {
		log.Warn().Err(err).Msg("couldn't fetch initial player state")
	} else {
		p.OnStateChange(s)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Watch(gctx, p.OnStateChange)
	})
	g.Go(func() error {
		if err := config.Watch(gctx, store.Path(), p.Reload); err != nil {
			log.Warn().Err(err).Msg("settings changes won't be picked up")
		}
		return nil
	})
	if sim != nil {
		g.Go(func() error {
			return emulator(gctx, sim, *snapshot)
		})
	}

	log.Info().Msgf("following %s", client)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("stopping")
	return nil
}

// emulator redraws the emulated display whenever it changes.
func emulator(ctx context.Context, sim *lcdsim.Bus, snapshot string) error {
	term := lcdsim.NewTerminal()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	var last uint64
	for first := true; ; first = false {
		if gen := sim.Generation(); first || gen != last {
			last = gen
			if err := sim.Render(term); err != nil {
				return fmt.Errorf("rendering display: %w", err)
			}
			if snapshot != "" {
				if err := sim.SavePNG(snapshot, 4); err != nil {
					log.Warn().Err(err).Msg("saving display snapshot")
				}
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
