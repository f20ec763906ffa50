package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	mainLogName     = "MnConfigLog.txt"
	timestampFormat = "2006-01-02 15:04:05.000"
)

// Options configures a Logger
type Options struct {
	// Path is the log directory. Empty disables file output.
	Path          string
	MaxLines      int
	RetentionDays int
	// Console receives a copy of every entry, os.Stderr when nil.
	Console io.Writer
}

// Logger handles all logging operations
type Logger struct {
	opts Options
	log  *logrus.Logger
	file *rotatingFile
	mu   sync.Mutex
}

// NewLogger creates a new logger instance
func NewLogger(opts Options) *Logger {
	if opts.MaxLines <= 0 {
		opts.MaxLines = 5000
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 40
	}
	if opts.Console == nil {
		opts.Console = os.Stderr
	}

	l := &Logger{
		opts: opts,
		log: &logrus.Logger{
			Formatter: &logrus.TextFormatter{
				DisableColors:          true,
				DisableLevelTruncation: true,
				FullTimestamp:          true,
				QuoteEmptyFields:       true,
				TimestampFormat:        time.RFC3339,
			},
			Hooks: make(logrus.LevelHooks),
			Level: logrus.DebugLevel,
			Out:   opts.Console,
		},
	}

	if opts.Path != "" {
		// Ensure the log directory exists
		if err := os.MkdirAll(opts.Path, 0755); err != nil {
			fmt.Fprintf(opts.Console, "Error creating log directory: %v\n", err)
		} else {
			f, err := openRotatingFile(opts.Path, mainLogName, opts.MaxLines, opts.RetentionDays)
			if err != nil {
				fmt.Fprintf(opts.Console, "Error opening log file: %v\n", err)
			} else {
				l.file = f
				l.log.Out = io.MultiWriter(opts.Console, f)
			}
		}
	}

	l.Info("==============================")
	l.Info("Log started at %s", time.Now().Format("2006-01-02 15:04:05"))
	l.Info("==============================")

	return l
}

// Close closes all log files
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}
}

// EnableTrace turns on trace level output
func (l *Logger) EnableTrace() {
	l.log.SetLevel(logrus.TraceLevel)
}

// InstallAsDefault points the logrus standard logger at the same outputs,
// formatter and level so package level logrus calls end up in the log file.
func (l *Logger) InstallAsDefault() {
	logrus.SetOutput(l.log.Out)
	logrus.SetFormatter(l.log.Formatter)
	logrus.SetLevel(l.log.GetLevel())
}

// Logrus exposes the underlying logger for middleware that wants a writer
// or structured fields.
func (l *Logger) Logrus() *logrus.Logger {
	return l.log
}

// WithFields returns an entry carrying the given structured fields
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.log.WithFields(fields)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log.Infof(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log.Errorf(format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.log.Warnf(format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}

// Trace logs a trace message (only if trace is enabled)
func (l *Logger) Trace(format string, args ...interface{}) {
	l.log.Tracef(format, args...)
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// AuditPath returns the audit file used for a tenant
func (l *Logger) AuditPath(tenant string) string {
	if l.opts.Path == "" || tenant == "" {
		return ""
	}
	return filepath.Join(l.opts.Path, fmt.Sprintf("AuditLog_%s.txt", unsafeFileChars.ReplaceAllString(tenant, "_")))
}

// Audit appends a line to the tenant's audit log. Every audited change is
// also mirrored to the main log at info level.
func (l *Logger) Audit(tenant, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.log.WithField("tenant", tenant).Info(message)

	path := l.AuditPath(tenant)
	if path == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	auditFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		l.log.Errorf("Error opening audit log file: %v", err)
		return
	}
	defer auditFile.Close()

	logEntry := fmt.Sprintf("%s %s\n", time.Now().Format(timestampFormat), message)
	if _, err := auditFile.WriteString(logEntry); err != nil {
		l.log.Errorf("Error writing audit log file: %v", err)
	}
}
