// Package logging builds the process logger. Components receive a
// zerolog.Logger explicitly; there is no package-level logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns the process logger writing to stderr. verbose lowers the level
// to debug; pretty switches to the console writer for interactive runs.
func New(verbose, pretty bool) zerolog.Logger {
	var w io.Writer = os.Stderr
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Nop returns a disabled logger, for tests and library callers that do not
// care about output.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
