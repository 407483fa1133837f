package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"recflow/internal/config"
	"recflow/internal/notifications"
)

type captured struct {
	title    string
	message  string
	tags     string
	priority string
}

func newServer(t *testing.T) (*httptest.Server, *[]captured) {
	t.Helper()
	var got []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, captured{
			title:    r.Header.Get("Title"),
			message:  string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyItemAbandoned(context.Background(), "a.mp4", "gone"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, got := newServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.Completions = true
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	if err := svc.NotifyItemAbandoned(ctx, "2026/call.mp4", "source file disappeared"); err != nil {
		t.Fatal(err)
	}
	if err := svc.NotifyCompleted(ctx, "2026/call.mp4", []string{"мок", "резюме"}, 3); err != nil {
		t.Fatal(err)
	}
	if err := svc.NotifyError(ctx, errors.New("disk full"), "state"); err != nil {
		t.Fatal(err)
	}

	want := []captured{
		{
			title:    "recflow - Recording Abandoned",
			message:  "⚠️ Recording abandoned: 2026/call.mp4\nReason: source file disappeared",
			tags:     "recflow,abandoned,warning",
			priority: "high",
		},
		{
			title:   "recflow - Complete",
			message: "✅ Delivered: 2026/call.mp4\nTags: мок, резюме\nParts: 3",
			tags:    "recflow,workflow,completed",
		},
		{
			title:    "recflow - Error",
			message:  "❌ Error with state: disk full",
			tags:     "recflow,error,alert",
			priority: "high",
		},
	}
	if len(*got) != len(want) {
		t.Fatalf("expected %d requests, got %d", len(want), len(*got))
	}
	for i, w := range want {
		if (*got)[i] != w {
			t.Errorf("request %d = %+v, want %+v", i, (*got)[i], w)
		}
	}
}

func TestCompletionAlertsAreOptIn(t *testing.T) {
	srv, got := newServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.Completions = false
	cfg.Notifications.Errors = false
	svc := notifications.NewService(&cfg)

	_ = svc.NotifyCompleted(context.Background(), "a.mp4", nil, 1)
	_ = svc.NotifyDeliveryFailed(context.Background(), "a.mp4", errors.New("x"))
	_ = svc.NotifyError(context.Background(), errors.New("x"), "")
	if len(*got) != 0 {
		t.Fatalf("expected no requests, got %d", len(*got))
	}
	if err := svc.TestNotification(context.Background()); err != nil || len(*got) != 1 {
		t.Fatalf("test notification err=%v requests=%d", err, len(*got))
	}
}

func TestNtfyErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	if err := notifications.NewService(&cfg).TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for 403")
	}
}
