package mitt

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxBytes is the maximum size of the emitter log file before
	// rotation (10MB).
	DefaultMaxBytes = 10 * 1024 * 1024

	// maxBackups is how many rotated log files are kept around.
	maxBackups = 5
)

// LogConfig holds configuration for emitter logging
type LogConfig struct {
	Enabled     bool   // Whether logging is enabled
	FilePath    string // Path to the log file
	IncludeInfo bool   // Whether to include INFO level logs (ERROR always logged when enabled)
}

// emitterLog is the emitter's optional structured log. When no LogConfig
// is supplied every method is a no-op, so dispatch pays nothing for the
// feature.
type emitterLog struct {
	logger      *logrus.Logger
	writer      *RotatingWriter
	includeInfo bool
}

func (l *emitterLog) setup(cfg *LogConfig) {
	if cfg == nil || !cfg.Enabled {
		return
	}
	writer, err := NewRotatingWriter(cfg.FilePath, DefaultMaxBytes)
	if err != nil {
		return
	}
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(writer)
	l.logger = logger
	l.writer = writer
	l.includeInfo = cfg.IncludeInfo
}

// info logs informational messages (only if IncludeInfo is enabled). kv is
// alternating key/value pairs.
func (l *emitterLog) info(msg string, kv ...any) {
	if l.logger == nil || !l.includeInfo {
		return
	}
	l.logger.WithFields(fields(kv)).Info(msg)
}

// error logs error messages (always logged when logging is enabled).
func (l *emitterLog) error(msg string, kv ...any) {
	if l.logger == nil {
		return
	}
	l.logger.WithFields(fields(kv)).Error(msg)
}

func (l *emitterLog) close() error {
	if l.writer == nil {
		return nil
	}
	err := l.writer.Close()
	l.writer = nil
	l.logger = nil
	return err
}

func fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

// RotatingWriter implements io.Writer with automatic file rotation when
// the file size exceeds a maximum threshold. Rotated files get numeric
// suffixes (.1 newest through .5 oldest).
type RotatingWriter struct {
	path     string
	maxBytes int64
	file     *os.File
	size     int64
	mu       sync.Mutex
}

// NewRotatingWriter creates a rotating writer appending to the file at
// path. maxBytes values <= 0 fall back to DefaultMaxBytes.
func NewRotatingWriter(path string, maxBytes int64) (*RotatingWriter, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	w := &RotatingWriter{
		path:     path,
		maxBytes: maxBytes,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = file
	w.size = info.Size()
	return nil
}

// Write writes p to the current file, rotating first when the write would
// push the file past the size threshold.
func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err = w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// rotate closes the current file, shifts the numbered backups up by one
// and opens a fresh file at the base path.
func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
	}

	// Shift .1 -> .2, .2 -> .3, ... dropping the oldest.
	for i := maxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", w.path, i)
		newPath := fmt.Sprintf("%s.%d", w.path, i+1)
		if _, err := os.Stat(oldPath); err == nil {
			os.Remove(newPath)
			if err := os.Rename(oldPath, newPath); err != nil {
				continue
			}
		}
	}

	backupPath := fmt.Sprintf("%s.%d", w.path, 1)
	if _, err := os.Stat(w.path); err == nil {
		os.Remove(backupPath)
		if err := os.Rename(w.path, backupPath); err != nil {
			// If rename fails, just drop the old file.
			os.Remove(w.path)
		}
	}

	return w.open()
}

// Close closes the underlying file
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}

// Ensure RotatingWriter implements io.WriteCloser
var _ io.WriteCloser = (*RotatingWriter)(nil)
