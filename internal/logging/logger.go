// internal/logging/logger.go
package logging

// Leveled logging for the dongle driver and its loops.

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelVerbose
	LogLevelDebug
)

// ParseLevel maps a config string to a LogLevel. Unknown names fall back to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent", "off":
		return LogLevelSilent
	case "error":
		return LogLevelError
	case "verbose":
		return LogLevelVerbose
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelInfo
	}
}

// Logger provides leveled logging with an optional file sink. Loggers
// derived with With share the root's sinks and level.
type Logger struct {
	prefix string
	s      *sink
}

type sink struct {
	mu      sync.Mutex
	level   LogLevel
	file    *os.File
	fileLog *log.Logger
	stdout  *log.Logger
	stderr  *log.Logger
}

// NewLogger creates a new logger. Info and above go to stdout, errors to stderr.
func NewLogger(level LogLevel, logFile string) (*Logger, error) {
	s := &sink{
		level:  level,
		stdout: log.New(os.Stdout, "", log.LstdFlags),
		stderr: log.New(os.Stderr, "", log.LstdFlags),
	}

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		s.file = file
		s.fileLog = log.New(file, "", log.LstdFlags)
	}

	return &Logger{s: s}, nil
}

// NewWriterLogger logs every enabled level to w. Used by tests and embedders.
func NewWriterLogger(level LogLevel, w io.Writer) *Logger {
	lg := log.New(w, "", 0)
	return &Logger{s: &sink{level: level, stdout: lg, stderr: lg}}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWriterLogger(LogLevelSilent, io.Discard)
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *Logger) *Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// With returns a logger sharing sinks and level whose messages carry a component prefix.
func (l *Logger) With(component string) *Logger {
	return &Logger{prefix: l.prefix + "[" + component + "] ", s: l.s}
}

// Close closes the log file, if any. Every logger sharing it stops writing there.
func (l *Logger) Close() error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	if l.s.file != nil {
		err := l.s.file.Close()
		l.s.file = nil
		l.s.fileLog = nil
		return err
	}
	return nil
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.enabled(LogLevelError) {
		l.write("ERROR: "+fmt.Sprintf(format, v...), true)
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	if l.enabled(LogLevelInfo) {
		l.write("INFO: "+fmt.Sprintf(format, v...), false)
	}
}

// Verbose logs a verbose message
func (l *Logger) Verbose(format string, v ...interface{}) {
	if l.enabled(LogLevelVerbose) {
		l.write("VERBOSE: "+fmt.Sprintf(format, v...), false)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.enabled(LogLevelDebug) {
		l.write("DEBUG: "+fmt.Sprintf(format, v...), false)
	}
}

// LogWords logs register words as hex (debug level only).
func (l *Logger) LogWords(label string, words []uint16) {
	if !l.enabled(LogLevelDebug) {
		return
	}
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%04X", w)
	}
	l.Debug("%s: %s", label, b.String())
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.level
}

func (l *Logger) enabled(level LogLevel) bool {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.level >= level
}

func (l *Logger) write(msg string, isError bool) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	msg = l.prefix + msg
	if l.s.fileLog != nil {
		l.s.fileLog.Println(msg)
	}
	if isError {
		l.s.stderr.Println(msg)
	} else {
		l.s.stdout.Println(msg)
	}
}
