// Package logging builds the process logger from config.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Logger is a slog.Logger whose level can be changed after creation.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New returns a text or JSON logger writing to w at the given level.
func New(w io.Writer, level, format string) (*Logger, error) {
	lv := new(slog.LevelVar)
	if err := setLevel(lv, level); err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lv}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return &Logger{Logger: slog.New(h), level: lv}, nil
}

// SetLevel changes the level of every logger derived from l.
func (l *Logger) SetLevel(level string) error {
	return setLevel(l.level, level)
}

// Level returns the current level.
func (l *Logger) Level() slog.Level { return l.level.Level() }

func setLevel(lv *slog.LevelVar, level string) error {
	var v slog.Level
	if err := v.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("unknown log level %q", level)
	}
	lv.Set(v)
	return nil
}
