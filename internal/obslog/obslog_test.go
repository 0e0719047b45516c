package obslog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewJSONConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Console: true, Format: "json", Stdout: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("engine_move", zap.String("move", "e2e4"))
	_ = logger.Sync()

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("not json: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "engine_move" || entry["move"] != "e2e4" || entry["level"] != "debug" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Console: true, Format: "console", Stdout: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	_ = logger.Sync()
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	logger, err := New(Options{Level: "info", ToFile: true, File: path, Format: "legacy"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("classifier_loaded")
	_ = logger.Sync()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), "classifier_loaded") || !strings.Contains(string(b), " | ") {
		t.Fatalf("unexpected file content %q", b)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("WARNING") != zapcore.WarnLevel || parseLevel("nonsense") != zapcore.InfoLevel {
		t.Fatalf("parseLevel mismatch")
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_TO_FILE", "true")
	opts := OptionsFromEnv()
	if opts.Level != "debug" || opts.Format != "json" || !opts.ToFile || !opts.Console {
		t.Fatalf("unexpected options %+v", opts)
	}
}
