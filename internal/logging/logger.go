// Package logging holds the process-wide text logger.
//
// Daemons log to a dated file under ~/.livelog/logs; CLI commands and tests
// can point the logger at any writer with InitWriter. Every helper is a no-op
// until one of the Init functions has run.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Version is reported in the startup line.
const Version = "0.3.0"

var (
	mu sync.RWMutex

	// Logger is the global logger instance
	Logger *log.Logger

	// logFile is the file handle for the log file
	logFile *os.File
)

// Dir returns the directory log files are written to.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".livelog", "logs"), nil
}

// Init initializes the logging system with a dated log file.
func Init(name string) error {
	logDir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	// Create log file with date
	logFileName := fmt.Sprintf("%s-%s.log", name, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(logDir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	mu.Lock()
	logFile = f
	mu.Unlock()

	InitWriter(f, log.DebugLevel)
	Info(name+" started", "version", Version)
	return nil
}

// InitWriter points the global logger at w. The caller owns w.
func InitWriter(w io.Writer, level log.Level) {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
	})
	mu.Lock()
	Logger = l
	mu.Unlock()
}

// ParseLevel maps a level name to a log level, defaulting to info.
func ParseLevel(s string) log.Level {
	lvl, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Close closes the log file
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if Logger != nil {
		Logger.Info("shutting down")
	}
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	Logger = nil
}

func current() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return Logger
}

// Info logs an info message
func Info(msg string, keyvals ...interface{}) {
	if l := current(); l != nil {
		l.Info(msg, keyvals...)
	}
}

// Debug logs a debug message
func Debug(msg string, keyvals ...interface{}) {
	if l := current(); l != nil {
		l.Debug(msg, keyvals...)
	}
}

// Warn logs a warning message
func Warn(msg string, keyvals ...interface{}) {
	if l := current(); l != nil {
		l.Warn(msg, keyvals...)
	}
}

// Error logs an error message
func Error(msg string, keyvals ...interface{}) {
	if l := current(); l != nil {
		l.Error(msg, keyvals...)
	}
}

// WithPrefix returns a logger with a prefix, or nil before Init.
func WithPrefix(prefix string) *log.Logger {
	if l := current(); l != nil {
		return l.WithPrefix(prefix)
	}
	return nil
}
