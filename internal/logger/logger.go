package logger

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"visionengine/internal/config"
)

// Level file names served by the /logs endpoints.
const (
	InfoFile    = "info.log"
	WarningFile = "warning.log"
	ErrorFile   = "error.log"
)

// Logger provides leveled logging (debug/info/warning/error) to stdout and per-level files.
type Logger struct {
	base   *logrus.Logger
	logDir string
	mu     sync.Mutex
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) *Logger {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	base := newBase(os.Stdout, config.LogLevel)
	logger := &Logger{
		base:   base,
		logDir: config.LogDirectory,
	}
	base.AddHook(logger.newFileHook())
	return logger
}

// New creates a Logger writing only to w. Used by tests and the CLI.
func New(w io.Writer, level string) *Logger {
	return &Logger{base: newBase(w, level)}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return New(io.Discard, "error")
}

func newBase(w io.Writer, level string) *logrus.Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006/01/02 15:04:05"})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
	return base
}

// Debug writes a formatted debug-level log entry.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.base.Debugf(format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.base.Infof(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.base.Warnf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.base.Errorf(format, v...)
}

// Directory returns the directory holding the level files, empty for stream-only loggers.
func (l *Logger) Directory() string {
	return l.logDir
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return nil
	}
	l.mu.Lock()
	err := os.Truncate(filepath.Join(l.logDir, fileName), 0)
	l.mu.Unlock()

	if err != nil && !os.IsNotExist(err) {
		return err
	}
	l.base.Infof("Log file %s has been cleared.", fileName)
	return nil
}

// fileHook appends each entry to the file of its level.
type fileHook struct {
	logger    *Logger
	formatter logrus.Formatter
}

func (l *Logger) newFileHook() *fileHook {
	return &fileHook{
		logger:    l,
		formatter: &logrus.TextFormatter{DisableColors: true, FullTimestamp: true},
	}
}

func (h *fileHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel}
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	name := InfoFile
	switch entry.Level {
	case logrus.WarnLevel:
		name = WarningFile
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		name = ErrorFile
	}

	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}

	h.logger.mu.Lock()
	defer h.logger.mu.Unlock()

	file, err := os.OpenFile(filepath.Join(h.logger.logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = file.Write(line)
	return err
}
