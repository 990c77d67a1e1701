package logger

import (
	"context"
	"fmt"
	"log/slog"
)

// Logger provides a simple logging interface for the widget and its collaborators.
// All implementations must be safe for concurrent use across multiple goroutines.
type Logger interface {
	// Type returns the type of the logger
	Type() LoggerType
	// Printf logs a formatted message
	Printf(format string, args ...any)
	// Println logs a message with a newline
	Println(message string)
	// Errorf logs a formatted message at error level
	Errorf(format string, args ...any)
	// Close closes the logger
	Close() error
}

type LoggerType string

const (
	LoggerTypeStdout LoggerType = "stdout"
	LoggerTypeFile   LoggerType = "file"
	LoggerTypeNoop   LoggerType = "noop"
	LoggerTypeWriter LoggerType = "writer"
	LoggerTypeMulti  LoggerType = "multi"
)

// slogLogger adapts an slog.Handler to the printf-style Logger interface.
type slogLogger struct {
	logger *slog.Logger
}

func (s slogLogger) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}

func (s slogLogger) Println(message string) {
	s.logger.Info(message)
}

func (s slogLogger) Errorf(format string, args ...any) {
	s.logger.Log(context.Background(), slog.LevelError, fmt.Sprintf(format, args...))
}

// MultiLogger writes to multiple loggers simultaneously.
// Safe for concurrent use if all underlying loggers are safe.
type MultiLogger struct {
	loggers []Logger
}

var _ Logger = (*MultiLogger)(nil)

// NewMultiLogger creates a logger that writes to multiple destinations
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
	}
}

func (m *MultiLogger) Type() LoggerType {
	return LoggerTypeMulti
}

func (m *MultiLogger) Printf(format string, args ...any) {
	for _, logger := range m.loggers {
		logger.Printf(format, args...)
	}
}

func (m *MultiLogger) Println(message string) {
	for _, logger := range m.loggers {
		logger.Println(message)
	}
}

func (m *MultiLogger) Errorf(format string, args ...any) {
	for _, logger := range m.loggers {
		logger.Errorf(format, args...)
	}
}

// Close closes every underlying logger and returns the first error encountered.
func (m *MultiLogger) Close() error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
