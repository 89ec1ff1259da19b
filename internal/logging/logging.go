// Package logging builds the service's slog logger.
//
// JSON on stdout is the default (container friendly). The console format uses
// tint for local runs. An extra writer, usually an MqttLogWriter, receives a
// copy of every line.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Options select the handler.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	Extra  io.Writer
}

// ParseLevel accepts the usual names case-insensitively; "warning" is an alias of "warn".
func ParseLevel(s string) (slog.Level, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "warning" {
		s = "warn"
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

// New returns a logger writing to out (plus opts.Extra). An unknown level
// falls back to info and is reported through the returned logger.
func New(out io.Writer, opts Options) *slog.Logger {
	level, levelErr := ParseLevel(opts.Level)

	w := out
	if opts.Extra != nil {
		w = io.MultiWriter(out, opts.Extra)
	}

	var h slog.Handler
	if opts.Format == "console" {
		h = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			// Colour codes would end up in forwarded lines.
			NoColor: opts.Extra != nil,
		})
	} else {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(h)
	if opts.Level != "" && levelErr != nil {
		logger.Warn("falling back to info logging", "error", levelErr)
	}
	return logger
}
