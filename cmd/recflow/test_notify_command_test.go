package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "not configured")
}

func TestTestNotifySends(t *testing.T) {
	var title, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title = r.Header.Get("Title")
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := setupCLITestEnv(t)
	env.cfg.Notifications.NtfyTopic = srv.URL + "/recflow"
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	if title != "recflow - Test" || body == "" {
		t.Fatalf("unexpected request title=%q body=%q", title, body)
	}
}

func TestTestNotifyReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	env := setupCLITestEnv(t)
	env.cfg.Notifications.NtfyTopic = srv.URL
	writeTestConfig(t, env.configPath, env.cfg)

	_, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err == nil {
		t.Fatal("expected failure")
	}
	requireContains(t, err.Error(), "403")
}
