package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
)

// Logger writes leveled records as text or JSON. The engine takes the
// underlying *slog.Logger; the CLI uses the map based helpers.
type Logger struct {
	json bool
	sl   *slog.Logger
}

func New(jsonOutput bool) *Logger {
	return NewWithWriter(os.Stdout, jsonOutput, slog.LevelInfo)
}

// NewWithWriter builds a Logger emitting records at or above level to w.
func NewWithWriter(w io.Writer, jsonOutput bool, level slog.Level) *Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if jsonOutput {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{json: jsonOutput, sl: slog.New(h)}
}

func (l *Logger) log(level slog.Level, msg string, fields map[string]any) {
	if !l.sl.Enabled(context.Background(), level) {
		return
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	l.sl.LogAttrs(context.Background(), level, msg, attrs...)
}

func (l *Logger) Debug(msg string, fields map[string]any) { l.log(slog.LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields map[string]any)  { l.log(slog.LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields map[string]any)  { l.log(slog.LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields map[string]any) { l.log(slog.LevelError, msg, fields) }

// JSONEnabled reports whether this logger is configured to emit JSON output.
func (l *Logger) JSONEnabled() bool { return l.json }

// Slog returns the structured logger backing l.
func (l *Logger) Slog() *slog.Logger { return l.sl }
