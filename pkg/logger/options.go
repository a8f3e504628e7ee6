package logger

import (
	"io"
	"log/slog"
)

// Option configures a logger created with New.
type Option func(*settings)

// WithDebug lowers the level to Debug when debug is true.
func WithDebug(debug bool) Option {
	return func(s *settings) {
		s.level = slog.LevelInfo
		if debug {
			s.level = slog.LevelDebug
		}
	}
}

// WithPretty selects the charmbracelet/log handler.
func WithPretty(pretty bool) Option {
	return func(s *settings) {
		s.setFormat(formatPretty, pretty)
	}
}

// WithJSON selects slog's JSON handler.
func WithJSON(json bool) Option {
	return func(s *settings) {
		s.setFormat(formatJSON, json)
	}
}

// WithWriter sends output to w only.
func WithWriter(w io.Writer) Option {
	return func(s *settings) {
		s.writers = []io.Writer{w}
	}
}

// WithWriters sends the same output to every w.
func WithWriters(w ...io.Writer) Option {
	return func(s *settings) {
		s.writers = w
	}
}

// WithSource adds the caller's file:line to each record.
func WithSource(source bool) Option {
	return func(s *settings) {
		s.source = source
	}
}

func (s *settings) setFormat(f format, on bool) {
	switch {
	case on:
		s.format = f
	case s.format == f:
		s.format = formatText
	}
}
