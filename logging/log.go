package logging

import (
	"io"
	"mtriage_go/config"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger from the logging config: output
// goes to stdout and the configured file (append mode, daemon restarts
// must not truncate history), level comes from the config with the
// RunEnv=DEBUG environment switch overriding it. Only mains should call
// this, and they must defer Sync and Close on the returned file.
func NewLogger(cfg config.LoggingConfig) (*logrus.Logger, *os.File) {
	logger := logrus.New()
	logger.Formatter = &logrus.TextFormatter{
		DisableColors:   true,
		ForceQuote:      true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
	}
	logger.SetReportCaller(true)

	lvl, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	if data, ok := os.LookupEnv("RunEnv"); ok && data == "DEBUG" {
		logger.SetLevel(logrus.DebugLevel)
	}

	fd, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		// directly panic
		panic(err)
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, fd))
	return logger, fd
}
