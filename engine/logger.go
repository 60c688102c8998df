package engine

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// LoggerOptions configure the logger of a run.
type LoggerOptions struct {
	// Verbosity 0 logs warnings, 1 info and 2 or more debug messages.
	Verbosity int
	// Format is LogFormatText (default) or LogFormatJSON.
	Format string
	// Output defaults to stderr.
	Output io.Writer
}

// NewLogger creates the run's logger. LOG_LEVEL overrides the verbosity.
func NewLogger(opts LoggerOptions) *logrus.Logger {
	logger := logrus.New()

	if opts.Format == LogFormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	logger.SetLevel(levelForVerbosity(opts.Verbosity))
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		if logLevel, err := logrus.ParseLevel(level); err == nil {
			logger.SetLevel(logLevel)
		}
	}

	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	} else {
		logger.SetOutput(os.Stderr)
	}
	return logger
}

func levelForVerbosity(v int) logrus.Level {
	switch {
	case v <= 0:
		return logrus.WarnLevel
	case v == 1:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}
