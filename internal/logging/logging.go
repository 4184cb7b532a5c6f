// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging configures the application's structured logger.
//
// The chat UI owns the terminal while it runs, so interactive sessions log to
// a file and one-shot CLI commands log to stderr. Both paths produce a
// pslog.Logger; everything downstream picks it up from the context with
// pslog.Ctx.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/pslog"
)

// =============================================================================
// LOGGER CONSTRUCTION
// =============================================================================

// Config selects where log output goes and how much of it there is.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error.
	// Unknown or empty means info.
	Level string

	// File receives structured log lines when set. Parent directories are
	// created as needed. Empty means stderr.
	File string

	// Console renders human-readable console output instead of structured
	// lines. Only sensible when File is empty.
	Console bool

	// Verbose includes every field on console output.
	Verbose bool
}

// New builds a logger per cfg. The returned closer owns the log file when one
// was opened; callers close it on shutdown. Logging to stderr returns a no-op
// closer.
func New(cfg Config) (pslog.Logger, io.Closer, error) {
	if cfg.File == "" {
		opts := pslog.Options{
			Mode:          pslog.ModeStructured,
			MinLevel:      ParseLevel(cfg.Level),
			VerboseFields: cfg.Verbose,
		}
		if cfg.Console {
			opts.Mode = pslog.ModeConsole
		}
		return pslog.NewWithOptions(os.Stderr, opts), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, nil, err
	}
	// Logs can carry prompt text; keep them private to the user.
	file, err := os.OpenFile(cfg.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, err
	}

	logger := pslog.NewWithOptions(file, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      ParseLevel(cfg.Level),
		VerboseFields: cfg.Verbose,
	})
	return logger, file, nil
}

// FromEnv builds a stderr console logger honoring the PSLOG_* environment
// variables. Used by CLI commands that run before configuration is loaded.
func FromEnv() pslog.Logger {
	return pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
}

// Discard returns a logger that drops everything.
func Discard() pslog.Logger {
	return pslog.NewWithOptions(io.Discard, pslog.Options{
		Mode:    pslog.ModeStructured,
		NoColor: true,
	})
}

// RedirectStdlog routes the standard library's global logger through logger,
// so stray log.Printf calls from dependencies end up in the same place.
func RedirectStdlog(logger pslog.Logger) {
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)
}

// ParseLevel maps a level name to its pslog level. Unknown names mean info;
// configuration validation rejects them before this runs.
func ParseLevel(s string) pslog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return pslog.TraceLevel
	case "debug":
		return pslog.DebugLevel
	case "warn", "warning":
		return pslog.WarnLevel
	case "error":
		return pslog.ErrorLevel
	default:
		return pslog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
