package logger

import "os"

// StdoutLogger writes log lines to standard output
type StdoutLogger struct {
	logCore
}

var _ Logger = (*StdoutLogger)(nil)

// NewStdoutLogger creates a logger that writes to stdout
func NewStdoutLogger() *StdoutLogger {
	return &StdoutLogger{newLogCore(os.Stdout)}
}

func (s *StdoutLogger) Type() LoggerType {
	return LoggerTypeStdout
}

func (s *StdoutLogger) Close() error {
	return nil
}
