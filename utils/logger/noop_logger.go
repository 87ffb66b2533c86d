package logger

// NoopLogger discards everything. The default when a component is built
// without a logger.
type NoopLogger struct{}

var _ Logger = (*NoopLogger)(nil)

// NewNoopLogger creates a logger that discards all output
func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

func (n *NoopLogger) Type() LoggerType {
	return LoggerTypeNoop
}

func (n *NoopLogger) Printf(format string, args ...any) {}

func (n *NoopLogger) Println(message string) {}

func (n *NoopLogger) Close() error {
	return nil
}
