// Package util provides low-level helpers shared by all other packages.
package util

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Logger writes levelled messages to stderr with optional timestamps
// and level prefixes.  It is a thin layer over a logrus.Logger so the
// same sink can be shared with a log file.
type Logger struct {
	base  *logrus.Logger
	entry *logrus.Entry
	fmt   *bracketFormatter

	mu    sync.Mutex
	files []*os.File
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	f := &bracketFormatter{timestamps: verbosity >= 3} // auto-enable timestamps in debug mode
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(f)
	base.SetLevel(logrusLevel(LogLevel(verbosity)))

	return &Logger{
		base:  base,
		entry: logrus.NewEntry(base),
		fmt:   f,
	}
}

func logrusLevel(l LogLevel) logrus.Level {
	switch {
	case l <= LogQuiet:
		return logrus.ErrorLevel
	case l == LogNormal:
		return logrus.InfoLevel
	case l == LogVerbose:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) { l.fmt.timestamps = on }

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) { l.base.SetOutput(w) }

// AddFile appends every message to the file at path in addition to the
// current output.  Timestamps are always written to the file.
func (l *Logger) AddFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	l.mu.Lock()
	l.files = append(l.files, f)
	l.mu.Unlock()

	l.base.AddHook(&fileHook{
		w:   f,
		fmt: &bracketFormatter{timestamps: true, dateStamp: true},
	})
	return nil
}

// Close releases any log files opened by AddFile.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var first error
	for _, f := range l.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.files = nil
	return first
}

// WithField returns a Logger that tags every message with key=value.
// The returned Logger shares output and files with its parent.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		base:  l.base,
		entry: l.entry.WithField(key, value),
		fmt:   l.fmt,
	}
}

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Tracef(format, args...)
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// ── formatting ───────────────────────────────────────────────────────

// bracketFormatter renders "[INF] message key=value".
type bracketFormatter struct {
	timestamps bool
	dateStamp  bool
}

func (f *bracketFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	if f.timestamps {
		layout := "15:04:05.000"
		if f.dateStamp {
			layout = "2006-01-02 15:04:05.000"
		}
		b.WriteString(e.Time.Format(layout))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "[%s] %s", levelTag(e.Level), e.Message)

	if len(e.Data) > 0 {
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
		}
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelTag(lvl logrus.Level) string {
	switch lvl {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return "ERR"
	case logrus.WarnLevel:
		return "WRN"
	case logrus.InfoLevel:
		return "INF"
	case logrus.DebugLevel:
		return "VRB"
	default:
		return "DBG"
	}
}

// fileHook mirrors entries into a log file with its own formatter.
type fileHook struct {
	mu  sync.Mutex
	w   io.Writer
	fmt logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(e *logrus.Entry) error {
	line, err := h.fmt.Format(e)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(line)
	return err
}
