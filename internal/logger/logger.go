// Package logger provides the configured zerolog logger for recall.
package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a logger writing human-readable lines to stderr. Stdout is
// reserved for command output so it stays safe to pipe.
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.WarnLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
