// Package logger builds the *slog.Logger values used across chatmem:
// colorized output for a person at a terminal, JSON for log files and
// collectors, plain text otherwise.
package logger

import (
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

type format int

const (
	formatText format = iota
	formatPretty
	formatJSON
)

type settings struct {
	level   slog.Level
	format  format
	source  bool
	writers []io.Writer
}

// New creates a *slog.Logger configured by opts. Without options it writes
// plain text at Info level to os.Stdout. When both WithPretty and WithJSON
// are given the last one wins.
func New(opts ...Option) *slog.Logger {
	s := &settings{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(s)
	}
	return slog.New(s.handler())
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func (s *settings) output() io.Writer {
	switch len(s.writers) {
	case 0:
		return os.Stdout
	case 1:
		return s.writers[0]
	default:
		return io.MultiWriter(s.writers...)
	}
}

func (s *settings) handler() slog.Handler {
	w := s.output()

	switch s.format {
	case formatPretty:
		return charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			ReportCaller:    s.source,
			Level:           charmlog.Level(s.level),
		})
	case formatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: s.level, AddSource: s.source})
	default:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: s.level, AddSource: s.source})
	}
}
