// Package logging emits the structured, newline-delimited JSON log events
// consumed by operators and smoke tests: one object per call of the shape
// {timestamp, level, event, ...fields}, built on rs/zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

func init() {
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "event"
	zerolog.TimeFieldFormat = timestampFormat
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
}

// Logger wraps a zerolog.Logger, fixing the field schema the core emits.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger writing newline-delimited JSON to w at the given
// minimum level ("debug", "info", "warn", "error"). Unrecognized levels
// fall back to "info".
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zl := zerolog.New(w).Level(lvl)
	return &Logger{zl: zl}
}

// SetLevel adjusts the minimum emitted level at runtime (used by the
// ambient config hot-reload path; never affects credentials).
func (l *Logger) SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return
	}
	l.zl = l.zl.Level(lvl)
}

// Fields is an ordered-agnostic set of additional event fields. Absent
// (nil) values are omitted from the emitted line, matching the
// "undefined fields must be omitted" requirement.
type Fields map[string]any

func (l *Logger) emit(evt *zerolog.Event, event string, fields Fields) {
	for k, v := range fields {
		if v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			evt = evt.Str(k, val)
		case int:
			evt = evt.Int(k, val)
		case int64:
			evt = evt.Int64(k, val)
		case uint64:
			evt = evt.Uint64(k, val)
		case float64:
			evt = evt.Float64(k, val)
		case bool:
			evt = evt.Bool(k, val)
		case time.Duration:
			evt = evt.Dur(k, val)
		default:
			evt = evt.Interface(k, val)
		}
	}
	evt.Msg(event)
}

// Info emits an info-level event.
func (l *Logger) Info(event string, fields Fields) {
	l.emit(l.zl.Info(), event, fields)
}

// Warn emits a warn-level event.
func (l *Logger) Warn(event string, fields Fields) {
	l.emit(l.zl.Warn(), event, fields)
}

// Error emits an error-level event.
func (l *Logger) Error(event string, fields Fields) {
	l.emit(l.zl.Error(), event, fields)
}
