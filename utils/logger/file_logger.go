package logger

import "os"

// FileLogger appends log lines to a file. O_APPEND keeps each write atomic,
// so several processes can share one log file.
type FileLogger struct {
	logCore
	file *os.File
}

var _ Logger = (*FileLogger)(nil)

// NewFileLogger opens (or creates) the file at path for appending
func NewFileLogger(path string) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}

	return &FileLogger{
		logCore: newLogCore(file),
		file:    file,
	}, nil
}

func (f *FileLogger) Type() LoggerType {
	return LoggerTypeFile
}

// Close closes the underlying file
func (f *FileLogger) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}
