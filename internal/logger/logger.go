package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
	"github.com/zsiec/tsingest/internal/config"
	"github.com/zsiec/tsingest/pkg/version"
)

// Logger is the structured logging surface used by the ingest components.
type Logger interface {
	WithFields(fields map[string]interface{}) Logger
	WithField(key string, value interface{}) Logger
	WithError(err error) Logger
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// LogrusAdapter wraps logrus.Entry to implement Logger
type LogrusAdapter struct {
	entry *logrus.Entry
}

// NewLogrusAdapter creates a new LogrusAdapter
func NewLogrusAdapter(entry *logrus.Entry) Logger {
	return &LogrusAdapter{entry: entry}
}

func (l *LogrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &LogrusAdapter{entry: l.entry.WithFields(fields)}
}

func (l *LogrusAdapter) WithField(key string, value interface{}) Logger {
	return &LogrusAdapter{entry: l.entry.WithField(key, value)}
}

func (l *LogrusAdapter) WithError(err error) Logger {
	return &LogrusAdapter{entry: l.entry.WithError(err)}
}

func (l *LogrusAdapter) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *LogrusAdapter) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *LogrusAdapter) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *LogrusAdapter) Error(args ...interface{}) { l.entry.Error(args...) }

func (l *LogrusAdapter) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *LogrusAdapter) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *LogrusAdapter) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *LogrusAdapter) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// Entry exposes the wrapped logrus entry.
func (l *LogrusAdapter) Entry() *logrus.Entry {
	return l.entry
}

// nullLogger discards everything. Used by tests and by components built
// without a logger.
type nullLogger struct{}

// NewNullLogger returns a Logger that discards all output
func NewNullLogger() Logger {
	return nullLogger{}
}

func (n nullLogger) WithFields(map[string]interface{}) Logger { return n }
func (n nullLogger) WithField(string, interface{}) Logger     { return n }
func (n nullLogger) WithError(error) Logger                   { return n }
func (nullLogger) Debug(...interface{})                       {}
func (nullLogger) Info(...interface{})                        {}
func (nullLogger) Warn(...interface{})                        {}
func (nullLogger) Error(...interface{})                       {}
func (nullLogger) Debugf(string, ...interface{})              {}
func (nullLogger) Infof(string, ...interface{})               {}
func (nullLogger) Warnf(string, ...interface{})               {}
func (nullLogger) Errorf(string, ...interface{})              {}

// New creates a new configured logger instance.
func New(cfg *config.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}

	out, err := output(cfg)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(out)

	return logger, nil
}

func output(cfg *config.LoggingConfig) (io.Writer, error) {
	switch cfg.Output {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	// File output with rotation
	dir := filepath.Dir(cfg.Output)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    cfg.MaxSize, // megabytes
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge, // days
		Compress:   true,
	}, nil
}

// ForRun returns the root Logger for one ingest run, tagged with the
// service, version and run id.
func ForRun(logger *logrus.Logger, runID string) Logger {
	return NewLogrusAdapter(logger.WithFields(logrus.Fields{
		"service": "tsingest",
		"version": version.GetInfo().Short(),
		"run_id":  runID,
	}))
}

// WithComponent tags a Logger with a component field.
func WithComponent(log Logger, component string) Logger {
	if log == nil {
		return NewNullLogger()
	}
	return log.WithField("component", component)
}

// Fields is a type alias for logrus.Fields for convenience
type Fields = logrus.Fields
