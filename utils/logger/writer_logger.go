package logger

import (
	"io"
	"log/slog"
)

// WriterLogger adapts any io.Writer to the Logger interface using logfmt style records.
// Thread safety depends on the underlying writer.
type WriterLogger struct {
	slogLogger
}

var _ Logger = (*WriterLogger)(nil)

// NewWriterLogger creates a logger from any io.Writer
func NewWriterLogger(w io.Writer) *WriterLogger {
	return &WriterLogger{slogLogger{logger: slog.New(slog.NewTextHandler(w, nil))}}
}

func (w *WriterLogger) Type() LoggerType {
	return LoggerTypeWriter
}

func (w *WriterLogger) Close() error {
	return nil
}
