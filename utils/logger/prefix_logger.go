package logger

// PrefixLogger tags every line with a fixed prefix before handing it to the
// wrapped logger, so output from different components can share one sink.
// Safe for concurrent use if the wrapped logger is safe.
type PrefixLogger struct {
	prefix  string
	wrapped Logger
}

var _ Logger = (*PrefixLogger)(nil)

// NewPrefixLogger wraps a logger so every message starts with "[prefix] "
func NewPrefixLogger(prefix string, wrapped Logger) *PrefixLogger {
	return &PrefixLogger{
		prefix:  "[" + prefix + "] ",
		wrapped: wrapped,
	}
}

func (p *PrefixLogger) Type() LoggerType {
	return LoggerTypePrefix
}

func (p *PrefixLogger) Printf(format string, args ...any) {
	p.wrapped.Printf(p.prefix+format, args...)
}

func (p *PrefixLogger) Println(message string) {
	p.wrapped.Println(p.prefix + message)
}

// Close closes the wrapped logger
func (p *PrefixLogger) Close() error {
	return p.wrapped.Close()
}
