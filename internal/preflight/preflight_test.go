package preflight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"recflow/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir, true)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "read/write ok") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"), false)
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f, false)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if r := CheckFreeSpace("space", dir, 1); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Detail)
	}
	if r := CheckFreeSpace("space", dir, ^uint64(0)); r.Passed || !strings.Contains(r.Detail, "need") {
		t.Fatalf("expected shortfall, got %#v", r)
	}
	if r := CheckFreeSpace("space", filepath.Join(dir, "missing"), 1); r.Passed {
		t.Fatal("expected statfs failure")
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[uint64]string{
		512:        "512 B",
		2048:       "2.0 KiB",
		5 << 30:    "5.0 GiB",
		1536 << 20: "1.5 GiB",
	}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func telegramServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/getMe") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckTelegram_OK(t *testing.T) {
	srv := telegramServer(t, http.StatusOK, `{"ok":true,"result":{"id":7,"username":"recbot","is_bot":true}}`)
	cfg := testsupport.NewConfig(t)
	cfg.Telegram.APIBaseURL = srv.URL

	result := CheckTelegram(context.Background(), cfg)
	if !result.Passed || result.Detail != "@recbot" {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestCheckTelegram_BadToken(t *testing.T) {
	srv := telegramServer(t, http.StatusUnauthorized, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	cfg := testsupport.NewConfig(t)
	cfg.Telegram.APIBaseURL = srv.URL

	result := CheckTelegram(context.Background(), cfg)
	if result.Passed {
		t.Fatal("expected failure for bad token")
	}
	if strings.Contains(result.Detail, cfg.Telegram.BotToken) {
		t.Fatalf("detail leaks token: %q", result.Detail)
	}
}

func TestCheckTelegram_MissingToken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Telegram.BotToken = ""
	if result := CheckTelegram(context.Background(), cfg); result.Passed {
		t.Fatal("expected failure for missing token")
	}
}

func TestCheckLLM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{
				"finish_reason": "stop",
				"message":       map[string]any{"content": `{"ok":true}`},
			}},
		})
	}))
	defer srv.Close()
	cfg := testsupport.NewConfig(t, testsupport.WithAI("key"))
	cfg.LLM.BaseURL = srv.URL

	if result := CheckLLM(context.Background(), "LLM", cfg.GetLLM()); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}

	cfg.LLM.APIKey = ""
	if result := CheckLLM(context.Background(), "LLM", cfg.GetLLM()); result.Passed {
		t.Fatal("expected failure without key")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, Options{}); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_LocalChecks(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Delivery.TargetMB = 1

	results := RunAll(context.Background(), cfg, Options{})
	// source, work, space, ffmpeg, ffprobe
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d: %#v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %#v", failed)
	}
}

func TestRunAll_AIRequiresUVX(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("ffmpeg", "ffprobe"), testsupport.WithAI("key"))
	cfg.Delivery.TargetMB = 1
	t.Setenv("PATH", filepath.Join(testsupport.BaseDir(cfg), "bin"))

	failed := Failed(RunAll(context.Background(), cfg, Options{}))
	if len(failed) != 1 || failed[0].Name != "uvx" {
		t.Fatalf("expected uvx failure, got %#v", failed)
	}
}
