// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package logging sets up the global zerolog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Init sends the global logger to a rotating file at path, plus writers. An
// empty path logs to writers only.
func Init(path string, debug bool, writers ...io.Writer) error {
	var logWriters []io.Writer
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return err
		}
		logWriters = append(logWriters, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    1,
			MaxBackups: 2,
		})
	}
	logWriters = append(logWriters, writers...)
	if len(logWriters) == 0 {
		logWriters = append(logWriters, io.Discard)
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(io.MultiWriter(logWriters...)).
		With().Timestamp().Caller().Logger()

	return nil
}
