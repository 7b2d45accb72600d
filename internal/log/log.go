// Package log provides the leveled logger threaded through CompilerContext.
//
// The source's global DataflowProfiler/CliParams/BackendManager singletons
// are replaced (per the compiler's design notes) by explicit context
// passing; Logger is one of the values that context carries, so nothing
// here is a package-level singleton.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Level controls which messages Logger.* actually writes.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is a small leveled wrapper around the standard library logger.
// Debug detail goes to the debug log; user-visible failures are a single
// line, per the error-handling design (full detail, including any stack
// trace, is never shown to the end user).
type Logger struct {
	level Level
	out   *log.Logger
}

// New creates a Logger writing to w at the given minimum level.
func New(w io.Writer, level Level) *Logger {
	return &Logger{level: level, out: log.New(w, "", log.LstdFlags)}
}

// Default returns a Logger writing to stderr at LevelInfo.
func Default() *Logger {
	return New(os.Stderr, LevelInfo)
}

func (l *Logger) log(level Level, prefix, format string, args ...interface{}) {
	if l == nil || level < l.level {
		return
	}
	l.out.Printf(prefix+" "+format, args...)
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.log(LevelDebug, "[debug]", format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.log(LevelInfo, "[info]", format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.log(LevelWarn, "[warn]", format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.log(LevelError, "[error]", format, args...) }

// Degrade logs err at warn level and swallows it. Use for materialization,
// profiling, and cache failures, which degrade gracefully rather than
// aborting compilation.
func (l *Logger) Degrade(context string, err error) {
	if err == nil {
		return
	}
	l.Warnf("%s: %v (continuing without it)", context, err)
}

// FatalOrWrap wraps err with context and returns it unchanged if err is
// nil. Use at call sites where the failure must abort compilation (schema
// errors, emission failures) rather than degrade, so the wrapped message
// still carries the chain of "what was being attempted" back to the caller.
func FatalOrWrap(context string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// DegradeOrIgnore is Degrade's boolean-returning form, for call sites that
// need to know whether the feature was actually skipped (e.g. the
// materialization catalogue falling back to a fresh compile).
func (l *Logger) DegradeOrIgnore(context string, err error) bool {
	if err == nil {
		return false
	}
	l.Degrade(context, err)
	return true
}
