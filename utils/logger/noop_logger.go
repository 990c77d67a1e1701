package logger

// NoopLogger discards all log messages. Components default to it until a logger is supplied.
type NoopLogger struct{}

var _ Logger = (*NoopLogger)(nil)

// NewNoopLogger creates a new logger that discards all output
func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

func (n *NoopLogger) Type() LoggerType {
	return LoggerTypeNoop
}

func (n *NoopLogger) Printf(format string, args ...any) {}

func (n *NoopLogger) Println(message string) {}

func (n *NoopLogger) Errorf(format string, args ...any) {}

func (n *NoopLogger) Close() error {
	return nil
}

// OrNoop returns l, or a NoopLogger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NewNoopLogger()
	}
	return l
}
