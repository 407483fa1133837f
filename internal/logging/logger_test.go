package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"recflow/internal/config"
	"recflow/internal/logging"
	"recflow/internal/services"
)

func TestNewFromConfigWritesJSONLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon started", logging.String("source_dir", "/tmp/src"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("log file is not JSON: %v (%q)", err, content)
	}
	if record["msg"] != "daemon started" || record["level"] != "info" {
		t.Fatalf("unexpected record %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key in %v", record)
	}
}

func TestNewFromConfigRedactsCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Telegram.BotToken = "987654:bot-token-value"
	cfg.LLM.APIKey = "sk-or-llm-key-value"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Warn("request failed",
		logging.String("url", "https://api.telegram.org/bot987654:bot-token-value/getUpdates"),
		logging.String("auth", "Bearer sk-or-llm-key-value"),
	)

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), "bot-token-value") || strings.Contains(string(content), "llm-key-value") {
		t.Fatalf("credentials leaked into log file: %s", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLineShape(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithItemKey(context.Background(), "calls/a b.mp4")
	ctx = services.WithStage(ctx, "tags")
	ctx = services.WithRequestID(ctx, "req-1")
	log := logging.WithContext(ctx, logging.NewComponentLogger(logger, "workflow"))
	log.Info("prompt sent", logging.Duration("elapsed", 1500*time.Millisecond))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, fragment := range []string{
		" INFO workflow: prompt sent",
		`item="calls/a b.mp4"`,
		"stage=tags",
		"correlation_id=req-1",
		"elapsed=1.5s",
	} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should render as prefix, got %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "keyboard refresh deferred", "markup_rate_limited")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record[logging.FieldEventType] != "markup_rate_limited" {
		t.Fatalf("unexpected event type: %v", record)
	}
	if record[logging.FieldErrorHint] == nil || record[logging.FieldImpact] == nil {
		t.Fatalf("expected hint and impact defaults: %v", record)
	}
}

func TestPruneLogsKeepsActiveFile(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-30 * 24 * time.Hour)
	for _, name := range []string{logging.LogFileName, "recflow-20250101T000000.log", "other.txt"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatal(err)
		}
	}

	removed := logging.PruneLogs(logging.NewNop(), dir, 14*24*time.Hour)
	if removed != 1 {
		t.Fatalf("expected one pruned file, got %d", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, logging.LogFileName)); err != nil {
		t.Fatalf("active log must remain: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "other.txt")); err != nil {
		t.Fatalf("unrelated file must remain: %v", err)
	}
}

func TestRotateIfLarge(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, logging.LogFileName)
	if err := os.WriteFile(active, bytes.Repeat([]byte("x"), 64), 0o644); err != nil {
		t.Fatal(err)
	}
	if rotated, err := logging.RotateIfLarge(dir, 1024); err != nil || rotated != "" {
		t.Fatalf("small file should stay: %q %v", rotated, err)
	}
	rotated, err := logging.RotateIfLarge(dir, 32)
	if err != nil || rotated == "" {
		t.Fatalf("expected rotation: %q %v", rotated, err)
	}
	if _, err := os.Stat(active); !os.IsNotExist(err) {
		t.Fatalf("active file should be moved, stat err=%v", err)
	}
}
