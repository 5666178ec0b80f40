package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the logger handed to every component.
type Logger = *logrus.Logger

// Entry is a logger carrying fields, as returned by WithField(s).
type Entry = *logrus.Entry

// Fields represents structured logging fields.
type Fields = logrus.Fields

// New creates a JSON logger writing to stdout at the level named by LOG_LEVEL.
func New() Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(LevelFromEnv())
	return logger
}

// NewWithService creates a logger whose entries all carry a service field.
func NewWithService(service string) Logger {
	logger := New()
	logger.AddHook(serviceHook{service: service})
	return logger
}

// Discard returns a logger that drops everything, for tests.
func Discard() Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// LevelFromEnv maps LOG_LEVEL to a logrus level, defaulting to info.
func LevelFromEnv() logrus.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

type serviceHook struct {
	service string
}

func (h serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h serviceHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["service"]; !ok {
		e.Data["service"] = h.service
	}
	return nil
}
