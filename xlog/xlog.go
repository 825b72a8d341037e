// Package xlog provides the structured logger used across this module: a
// kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout)) decorated with
// kitlog.With, logging leveled key/value records via
// logger.Log("level", ..., "subsys", ..., ...).
package xlog

import (
	"os"

	kitlog "github.com/go-kit/kit/log"
)

// New returns a logfmt logger writing to stdout, decorated with the given
// subsystem name.
func New(subsys string) kitlog.Logger {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	return kitlog.With(logger, "subsys", subsys)
}

// Nop returns a logger that discards everything, for tests and callers
// that have not wired a destination.
func Nop() kitlog.Logger {
	return kitlog.NewNopLogger()
}

// Warn logs a leveled warning record, matching the "level"/"reason" key
// shape used throughout mission.go.
func Warn(logger kitlog.Logger, reason string, keyvals ...interface{}) {
	if logger == nil {
		return
	}
	args := append([]interface{}{"level", "warning", "reason", reason}, keyvals...)
	logger.Log(args...)
}

// Info logs a leveled informational record.
func Info(logger kitlog.Logger, message string, keyvals ...interface{}) {
	if logger == nil {
		return
	}
	args := append([]interface{}{"level", "info", "message", message}, keyvals...)
	logger.Log(args...)
}
