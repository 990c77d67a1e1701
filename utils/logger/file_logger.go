package logger

import (
	"log/slog"
	"os"
)

// FileLogger writes JSON lines to a file opened with O_APPEND, so concurrent
// writers (goroutines or processes) never interleave within a record.
type FileLogger struct {
	slogLogger
	file *os.File
}

var _ Logger = (*FileLogger)(nil)

// NewFileLogger creates a new logger that writes to the specified file path.
// Returns an error if the file cannot be opened.
func NewFileLogger(filepath string) (*FileLogger, error) {
	file, err := os.OpenFile(filepath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}

	return &FileLogger{
		slogLogger: slogLogger{logger: slog.New(slog.NewJSONHandler(file, nil))},
		file:       file,
	}, nil
}

func (f *FileLogger) Type() LoggerType {
	return LoggerTypeFile
}

// Close closes the underlying file. Should be called when done with the logger.
func (f *FileLogger) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}
