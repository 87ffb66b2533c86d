package logger

import "errors"

// Logger is the logging surface every component takes. Implementations must
// be safe for concurrent use.
type Logger interface {
	// Type identifies the implementation
	Type() LoggerType
	// Printf writes a formatted line
	Printf(format string, args ...any)
	// Println writes one line
	Println(message string)
	// Close releases whatever the logger holds open
	Close() error
}

type LoggerType string

const (
	LoggerTypeStdout LoggerType = "stdout"
	LoggerTypeFile   LoggerType = "file"
	LoggerTypeNoop   LoggerType = "noop"
	LoggerTypeWriter LoggerType = "writer"
	LoggerTypeMulti  LoggerType = "multi"
	LoggerTypePrefix LoggerType = "prefix"
)

// MultiLogger fans every message out to several loggers at once, so one
// component can log to stdout and a file together.
type MultiLogger struct {
	loggers []Logger
}

var _ Logger = (*MultiLogger)(nil)

// NewMultiLogger wraps the given loggers behind one Logger
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
	}
}

func (m *MultiLogger) Type() LoggerType {
	return LoggerTypeMulti
}

func (m *MultiLogger) Printf(format string, args ...any) {
	for _, l := range m.loggers {
		l.Printf(format, args...)
	}
}

func (m *MultiLogger) Println(message string) {
	for _, l := range m.loggers {
		l.Println(message)
	}
}

// Close closes every wrapped logger, returning the errors joined
func (m *MultiLogger) Close() error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
