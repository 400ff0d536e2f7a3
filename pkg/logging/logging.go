// Package logging provides the shared zap logger for parley.
//
// The chat surface owns stdout, so the logger stays silent unless debug
// mode is requested via Init or the DEBUG environment variable; in debug
// mode a development logger writes to stderr.
package logging

import (
	"os"

	"go.uber.org/zap"
)

var logger *zap.Logger

func init() {
	if os.Getenv("DEBUG") == "true" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger = zap.NewNop()
	}
}

// Init reconfigures the shared logger. Called once at startup after flags
// and config are resolved.
func Init(debug bool) {
	if debug {
		logger, _ = zap.NewDevelopment()
		return
	}
	logger = zap.NewNop()
}

// L returns the shared logger.
func L() *zap.Logger {
	return logger
}

// With returns a child logger with the given fields attached.
func With(fields ...zap.Field) *zap.Logger {
	return logger.With(fields...)
}

// Sync flushes any buffered log entries. Safe to call on exit.
func Sync() {
	_ = logger.Sync()
}
