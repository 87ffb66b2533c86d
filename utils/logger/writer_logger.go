package logger

import (
	"io"
	"log"
)

// logCore is the standard-library logger shared by every writer-backed
// implementation. log.Logger serializes writes internally.
type logCore struct {
	out *log.Logger
}

func newLogCore(w io.Writer) logCore {
	return logCore{out: log.New(w, "", log.LstdFlags)}
}

func (c logCore) Printf(format string, args ...any) {
	c.out.Printf(format, args...)
}

func (c logCore) Println(message string) {
	c.out.Println(message)
}

// WriterLogger adapts any io.Writer to the Logger interface. Thread safety
// depends on the underlying writer.
type WriterLogger struct {
	logCore
}

var _ Logger = (*WriterLogger)(nil)

// NewWriterLogger logs through the given writer
func NewWriterLogger(w io.Writer) *WriterLogger {
	return &WriterLogger{newLogCore(w)}
}

func (w *WriterLogger) Type() LoggerType {
	return LoggerTypeWriter
}

func (w *WriterLogger) Close() error {
	return nil
}
