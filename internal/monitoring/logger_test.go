package monitoring

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	cfg := &LogConfig{
		Level:      "info",
		Format:     "json",
		Output:     "file",
		FilePath:   logPath,
		MaxSizeMB:  10,
		MaxBackups: 2,
		MaxAgeDays: 7,
	}

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("test message", zap.String("key", "value"))
	logger.Sync()

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Errorf("Log file was not created: %s", logPath)
	}
}

func TestNewLoggerConsole(t *testing.T) {
	cfg := &LogConfig{
		Level:  "debug",
		Format: "console",
		Output: "console",
	}

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create console logger: %v", err)
	}
	defer logger.Sync()

	logger.Debug("debug message")
	logger.Info("info message")
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig("/data")

	if cfg.FilePath != filepath.Join("/data", "logs", "kordia.log") {
		t.Errorf("FilePath = %s", cfg.FilePath)
	}
	if cfg.Level != "info" || cfg.Format != "json" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := NewLogger(&LogConfig{Level: "invalid", Format: "json", Output: "console"})
	if err == nil {
		t.Error("Expected error for invalid log level, got nil")
	}
}

func TestInvalidLogOutput(t *testing.T) {
	_, err := NewLogger(&LogConfig{Level: "info", Format: "json", Output: "syslog"})
	if err == nil {
		t.Error("Expected error for invalid log output, got nil")
	}
}

func TestComponentLogger(t *testing.T) {
	if ComponentLogger(nil, "offline", "mobile") == nil {
		t.Fatal("ComponentLogger(nil) should return a no-op logger")
	}
	ComponentLogger(zap.NewNop(), "offline", "mobile").Info("tagged")
}
