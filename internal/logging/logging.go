package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/wikihist/wikihist/internal/config"
)

// New builds a logger from the log configuration. A file of "-" logs to
// stderr; anything else goes through a rotating file writer.
func New(cfg config.Log) *logrus.Logger {
	logger := logrus.New()

	var writer io.Writer
	if cfg.File == "-" || cfg.File == "" {
		writer = os.Stderr
	} else {
		writer = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    20,
			MaxBackups: 5,
			MaxAge:     28,
		}
	}
	logger.SetOutput(writer)

	switch cfg.Formatter {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	switch cfg.Level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	return logger
}
