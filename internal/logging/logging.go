// Package logging builds the slog loggers used across bbp. Each layer adds
// its own "component" attribute.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Format specifies the output format for logging.
type Format int

const (
	FormatText Format = iota // Text format (default)
	FormatJSON               // JSON format
)

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "text"
}

// ParseFormat accepts "text" or "json", case-insensitively. Empty is text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format %q", s)
}

// ParseLevel accepts debug, info, warn or error, with optional offsets
// such as "debug-4". Empty is info.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// New creates a logger writing to w at the given level and format.
func New(w io.Writer, level slog.Leveler, format Format) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts))
	default:
		return slog.New(slog.NewTextHandler(w, opts))
	}
}

// Setup parses level and format names and builds a logger for w.
func Setup(w io.Writer, level, format string) (*slog.Logger, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return New(w, l, f), nil
}
