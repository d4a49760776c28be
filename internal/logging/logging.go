// Package logging provides a thin leveled wrapper over the standard
// library's log.Logger, matching the teacher's own practice of plain
// log.Printf/Fatalf rather than a structured-logging dependency.
package logging

import (
	"io"
	"log"
	"os"
)

// Level orders the severities this logger recognizes.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger wraps *log.Logger with a minimum level filter.
type Logger struct {
	min Level
	out *log.Logger
}

// New builds a Logger writing to w, suppressing anything below min.
func New(w io.Writer, min Level) *Logger {
	return &Logger{min: min, out: log.New(w, "", log.LstdFlags)}
}

// Default builds a Logger to stderr at LevelInfo, the resolver's normal
// runtime verbosity.
func Default() *Logger {
	return New(os.Stderr, LevelInfo)
}

func (l *Logger) logf(level Level, format string, args ...any) {
	if level < l.min {
		return
	}
	l.out.Printf("["+level.String()+"] "+format, args...)
}

func (l *Logger) Tracef(format string, args ...any) { l.logf(LevelTrace, format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

// Fatalf logs at LevelError regardless of the minimum level, then exits.
func (l *Logger) Fatalf(format string, args ...any) {
	l.out.Fatalf("[ERROR] "+format, args...)
}
