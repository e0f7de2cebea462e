package logging

import (
	"strings"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// New builds the process logger. Development gets the prefixed text
// formatter, everything else JSON. When logFile is set, info and above are
// also appended to it through an lfshook.
func New(service, level, appEnv, logFile string) *logrus.Entry {
	logger := logrus.New()
	logger.Level = LogLevel(level)

	if appEnv == "development" {
		logger.Formatter = new(prefixed.TextFormatter)
	} else {
		logger.Formatter = &logrus.JSONFormatter{}
	}

	if logFile != "" {
		pathMap := lfshook.PathMap{
			logrus.InfoLevel:  logFile,
			logrus.WarnLevel:  logFile,
			logrus.ErrorLevel: logFile,
			logrus.FatalLevel: logFile,
			logrus.PanicLevel: logFile,
		}
		logger.Hooks.Add(lfshook.NewHook(pathMap, &logrus.JSONFormatter{}))
	}

	return logger.WithField("prefix", service)
}

func LogLevel(l string) logrus.Level {
	switch strings.ToLower(l) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}
