// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides the structured logger shared by every ravelid
// component: the mapping engine's round snapshots, the detector's verdicts,
// and the firewall aggregator's filter actions all go through here instead
// of fmt.Println, so they carry consistent attributes and can be routed to
// syslog or a rotating file in addition to stderr.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where log records are written and at what level.
type Config struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string
	// JSON selects slog.JSONHandler instead of slog.TextHandler for stderr.
	JSON bool
	// FilePath, when non-empty, additionally writes JSON records to a
	// lumberjack-rotated file.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Syslog, when Enabled, additionally forwards records to a syslog daemon.
	Syslog SyslogConfig
}

// DefaultConfig returns the logger configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 28,
		Syslog:     DefaultSyslogConfig(),
	}
}

// Logger wraps *slog.Logger so call sites depend on this package, not on
// log/slog directly, keeping the sink pluggable.
type Logger struct {
	*slog.Logger
	closers []io.Closer
}

// New builds a Logger from cfg. Handler construction never fails outright:
// a syslog dial failure is logged to stderr and the logger continues
// without that sink.
func New(cfg Config) *Logger {
	handlers := []slog.Handler{}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.JSON {
		handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
	}

	l := &Logger{}

	if cfg.FilePath != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		handlers = append(handlers, slog.NewJSONHandler(lj, opts))
		l.closers = append(l.closers, lj)
	}

	if cfg.Syslog.Enabled {
		w, err := NewSyslogWriter(cfg.Syslog)
		if err != nil {
			slog.New(handlers[0]).Error("syslog sink disabled", "error", err)
		} else {
			handlers = append(handlers, slog.NewTextHandler(w, opts))
			l.closers = append(l.closers, w)
		}
	}

	l.Logger = slog.New(fanout(handlers))
	return l
}

// Close releases any file or network sinks the logger opened.
func (l *Logger) Close() error {
	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// fanoutHandler dispatches every record to all of its handlers, used to
// write to stderr, a rotated file and syslog simultaneously.
type fanoutHandler struct {
	handlers []slog.Handler
}

func fanout(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return &fanoutHandler{handlers: handlers}
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}
