// Package vcslog provides leveled logging for vcsfs.
//
// Like apoc/log in the teacher codebase, this wraps the standard library
// log.Logger with a level filter instead of pulling in a structured
// logging dependency. vcsfs has no ambient request/trace context to
// attach to log lines, so a single package-level logger is enough.
package vcslog

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// Level represents a logging severity.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
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

var (
	currentLevel atomic.Int32
	logger       = log.New(os.Stderr, "", log.LstdFlags)
)

func init() {
	currentLevel.Store(int32(LevelInfo))
}

// SetLevel changes the minimum level that will be emitted.
func SetLevel(l Level) {
	currentLevel.Store(int32(l))
}

func enabled(l Level) bool {
	return int32(l) >= currentLevel.Load()
}

// Debugf logs a debug-level message.
func Debugf(format string, args ...any) { emit(LevelDebug, format, args...) }

// Infof logs an info-level message.
func Infof(format string, args ...any) { emit(LevelInfo, format, args...) }

// Warnf logs a warning-level message.
func Warnf(format string, args ...any) { emit(LevelWarn, format, args...) }

// Errorf logs an error-level message.
func Errorf(format string, args ...any) { emit(LevelError, format, args...) }

func emit(l Level, format string, args ...any) {
	if !enabled(l) {
		return
	}
	logger.Output(3, fmt.Sprintf("[%s] %s", l, fmt.Sprintf(format, args...)))
}
