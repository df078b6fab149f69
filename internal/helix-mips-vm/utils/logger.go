package utils

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the root logger for a run. The level name follows
// zerolog's conventions ("trace", "debug", "info", "warn", "error");
// unknown names fall back to info so a bad HELIX_LOG value can never abort
// a run. Logging is diagnostic only and never contributes to proof content.
func NewLogger(level string) zerolog.Logger {
	return NewLoggerTo(os.Stderr, level)
}

// NewLoggerTo is NewLogger writing to an explicit sink; tests use it to
// capture output.
func NewLoggerTo(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(console).Level(lvl).With().Timestamp().Logger()
}
