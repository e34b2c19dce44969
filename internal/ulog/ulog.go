// Package ulog bootstraps zerolog the way the teacher's cmd binaries do:
// pretty console output for interactive use, plain JSON when asked for a
// production/container setting, each component tagging its own logger.
package ulog

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a root logger at the given level ("trace".."error") and
// format ("console" or "json"); an unrecognized level defaults to info.
func New(level, format string) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(level))

	if strings.EqualFold(format, "json") {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}

// Component returns a child logger tagged with the given component name,
// the convention every package in this module uses to identify its logs.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
