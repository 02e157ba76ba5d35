// Package logging builds the process-wide zerolog.Logger from
// configuration. There is no package-global logger; New's result is
// threaded explicitly into every component that logs.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/kalgynirae/sudoku/internal/config"
)

// New builds a logger configured per cfg: JSON to stdout by default,
// or a console writer when cfg.Color is set.
func New(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer = os.Stdout
	if cfg.Color {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "sudoku").
		Logger()
}
