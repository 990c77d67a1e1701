package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// StdoutLogger writes colored, human readable logs to stdout.
// Safe for concurrent use across goroutines.
type StdoutLogger struct {
	slogLogger
}

var _ Logger = (*StdoutLogger)(nil)

// NewStdoutLogger creates a new logger that writes to stdout
func NewStdoutLogger() *StdoutLogger {
	return newTintLogger(os.Stdout, false)
}

func newTintLogger(w io.Writer, noColor bool) *StdoutLogger {
	handler := tint.NewHandler(w, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	})
	return &StdoutLogger{slogLogger{logger: slog.New(handler)}}
}

func (s *StdoutLogger) Type() LoggerType {
	return LoggerTypeStdout
}

func (s *StdoutLogger) Close() error {
	return nil
}

// NewStdoutLoggerNoColor is NewStdoutLogger without ANSI colors, for terminals and CI logs that do not render them.
func NewStdoutLoggerNoColor() *StdoutLogger {
	return newTintLogger(os.Stdout, true)
}
