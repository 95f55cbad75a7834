package config

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger. format is "json" or "text"; an
// unknown level falls back to info.
func NewLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if strings.EqualFold(format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// LogError writes one error line tagged with where it happened.
func LogError(logger logrus.FieldLogger, moduleName string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
