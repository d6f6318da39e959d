// Package obslog centralizes the zerolog construction the engine uses
// for structural errors and evaluation-call summaries.
package obslog

import (
	"io"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger writing to w with the given component name
// set as a static field.
func New(w io.Writer, component string) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Str("component", component).Logger()
}

// Nop returns a logger that discards everything, the default an Engine
// falls back to when no logger is supplied via WithLogger.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
