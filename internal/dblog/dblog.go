// Package dblog wires structured logging through NanoDB's storage and
// execution layers. It is adapted from cuemby-warren's pkg/log: the same
// global Logger-plus-Init shape, generalized with the component tags this
// engine's subsystems need (component, session_id, txn_id) in place of
// warren's node/service/task tags.
package dblog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the package-level logger every component pulls a child from.
var Logger zerolog.Logger

// Level names the configurable log verbosity.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how Init constructs the global logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger. session.Open calls it on every
// open with the configured level and format; tests that want quiet
// output can call it with Output pointed at io.Discard.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

func init() {
	// Safe default so packages that log before cmd/nanodb calls Init
	// (notably package tests) don't panic on a zero-value Logger.
	Init(Config{Level: InfoLevel, Output: os.Stderr})
}

// WithComponent returns a child logger tagged with the subsystem name
// (e.g. "bufferpool", "wal", "planner").
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithSession returns a child logger tagged with a session ID.
func WithSession(sessionID string) zerolog.Logger {
	return Logger.With().Str("session_id", sessionID).Logger()
}

// WithTxn returns a child logger tagged with a transaction ID.
func WithTxn(txnID uint64) zerolog.Logger {
	return Logger.With().Uint64("txn_id", txnID).Logger()
}
