package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if h := newFanoutHandler(nil, nil); h != slog.DiscardHandler {
		t.Errorf("expected discard handler for all nil handlers, got %T", h)
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner, nil); h != inner {
		t.Error("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsLevels(t *testing.T) {
	var info, debug bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout to be enabled for debug")
	}

	logger := slog.New(h).With("component", "workflow").WithGroup("item")
	logger.Debug("poll", "events", 0)
	logger.Info("offered", "key", "a.mp4")

	if strings.Contains(info.String(), "poll") {
		t.Errorf("info sink received a debug record: %s", info.String())
	}
	for _, out := range []string{info.String(), debug.String()} {
		if !strings.Contains(out, `"component":"workflow"`) || !strings.Contains(out, `"item":{"key":"a.mp4"}`) {
			t.Errorf("attrs or group lost: %s", out)
		}
	}
	if !strings.Contains(debug.String(), "poll") {
		t.Errorf("debug sink missed the debug record: %s", debug.String())
	}
}

func TestRedactHandlerMasksSecrets(t *testing.T) {
	const token = "123456:AAH-secret-token"
	var buf bytes.Buffer
	h := newRedactHandler(slog.NewJSONHandler(&buf, nil), []string{token, "short", ""})
	logger := slog.New(h).With("url", "https://api.telegram.org/bot"+token+"/getMe")

	logger.Info("call failed for bot"+token,
		Error(errors.New("Post \"https://api.telegram.org/bot"+token+"/sendMessage\": EOF")),
		slog.Group("req", slog.String("path", "/bot"+token)),
		Int("attempt", 2),
		String("word", "short"),
	)

	out := buf.String()
	if strings.Contains(out, token) {
		t.Fatalf("token leaked: %s", out)
	}
	if strings.Count(out, redactedMark) != 4 {
		t.Fatalf("expected 4 masked values: %s", out)
	}
	if !strings.Contains(out, `"attempt":2`) || !strings.Contains(out, `"word":"short"`) {
		t.Fatalf("non-secret values changed: %s", out)
	}
}

func TestRedactHandlerWithoutSecretsIsTransparent(t *testing.T) {
	inner := slog.NewJSONHandler(&bytes.Buffer{}, nil)
	if h := newRedactHandler(inner, []string{"", "  "}); h != inner {
		t.Fatalf("expected inner handler, got %T", h)
	}
}
