package logging_test

import (
	"mtriage_go/config"
	"mtriage_go/logging"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLogger(t *testing.T) {
	t.Setenv("RunEnv", "")

	t.Run("level from config", func(t *testing.T) {
		logger, fd := logging.NewLogger(config.LoggingConfig{
			File:  filepath.Join(t.TempDir(), "triage.log"),
			Level: "warn",
		})
		defer fd.Close()
		if logger.GetLevel() != logrus.WarnLevel {
			t.Errorf("GetLevel() = %v, want %v", logger.GetLevel(), logrus.WarnLevel)
		}
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		logger, fd := logging.NewLogger(config.LoggingConfig{
			File:  filepath.Join(t.TempDir(), "triage.log"),
			Level: "loudest",
		})
		defer fd.Close()
		if logger.GetLevel() != logrus.InfoLevel {
			t.Errorf("GetLevel() = %v, want %v", logger.GetLevel(), logrus.InfoLevel)
		}
	})

	t.Run("log file appended not truncated", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "triage.log")
		if err := os.WriteFile(path, []byte("earlier run\n"), 0644); err != nil {
			t.Fatal(err)
		}
		logger, fd := logging.NewLogger(config.LoggingConfig{File: path, Level: "info"})
		logger.Infoln("fresh entry")
		fd.Close()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "earlier run") {
			t.Error("previous log content truncated")
		}
		if !strings.Contains(string(data), "fresh entry") {
			t.Error("new entry missing from log file")
		}
	})
}

func TestNewLoggerDebugEnvOverride(t *testing.T) {
	t.Setenv("RunEnv", "DEBUG")

	logger, fd := logging.NewLogger(config.LoggingConfig{
		File:  filepath.Join(t.TempDir(), "triage.log"),
		Level: "error",
	})
	defer fd.Close()
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("GetLevel() = %v, want %v under RunEnv=DEBUG", logger.GetLevel(), logrus.DebugLevel)
	}
}
