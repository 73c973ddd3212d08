// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for VibeVariant components.
//
// Built on the standard library slog package with two destinations:
// stderr (default, Unix-friendly) and an optional log file. The
// statistical engine itself never logs (analysis diagnostics travel in
// the result), so this package serves the infrastructure around it: the
// experiment store, the calibrator, and batch jobs.
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("calibration complete", "project", projectKey)
//
// # File Logging
//
//	logger, err := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "/var/log/vibevariant",
//	    Service: "stats",
//	})
//	defer logger.Close()
//
// This writes `{service}_{date}.log` files alongside stderr. Both
// destinations share one handler, so the file is written as text unless
// JSON or Quiet is set.
//
// # Thread Safety
//
// Logger is safe for concurrent use.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota - 1
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) toSlog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures a Logger. The zero value logs Info+ to stderr as
// text.
type Config struct {
	// Level is the minimum severity; lower messages are discarded.
	Level Level

	// LogDir enables JSON file logging in the given directory, created
	// with 0750 when missing. Empty disables file output.
	LogDir string

	// Service tags every entry with a "service" attribute and names the
	// log file.
	Service string

	// JSON switches output to JSON. Stderr and file share one format:
	// the file is JSON when JSON is set or Quiet leaves it as the only
	// destination, and text otherwise.
	JSON bool

	// Quiet disables stderr output (file only).
	Quiet bool
}

// Logger wraps slog with file teardown.
type Logger struct {
	*slog.Logger
	file *os.File
}

// Default returns a stderr text logger at Info level.
func Default() *Logger {
	l, _ := New(Config{})
	return l
}

// New creates a Logger from config.
//
// Outputs:
//   - *Logger: Ready to use; call Close when LogDir is set.
//   - error: Non-nil when the log directory or file cannot be created.
func New(cfg Config) (*Logger, error) {
	var writers []io.Writer
	var file *os.File

	if !cfg.Quiet {
		writers = append(writers, os.Stderr)
	}

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0750); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", cfg.LogDir, err)
		}
		name := cfg.Service
		if name == "" {
			name = "vibevariant"
		}
		path := filepath.Join(cfg.LogDir, fmt.Sprintf("%s_%s.log", name, time.Now().Format("2006-01-02")))
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		file = f
		writers = append(writers, f)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.Level.toSlog()}
	switch {
	case len(writers) == 0:
		handler = slog.DiscardHandler
	case cfg.JSON || (cfg.LogDir != "" && cfg.Quiet):
		handler = slog.NewJSONHandler(io.MultiWriter(writers...), opts)
	default:
		handler = slog.NewTextHandler(io.MultiWriter(writers...), opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	return &Logger{Logger: logger, file: file}, nil
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
