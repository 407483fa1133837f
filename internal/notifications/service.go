package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"recflow/internal/config"
)

const userAgent = "recflow/0.1.0"

// Service defines the operator alert surface used by the workflow.
type Service interface {
	NotifyItemAbandoned(ctx context.Context, key, reason string) error
	NotifyDeliveryFailed(ctx context.Context, key string, err error) error
	NotifyCompleted(ctx context.Context, key string, tags []string, parts int) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		completions: cfg.Notifications.Completions,
		errors:      cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	completions bool
	errors      bool
}

func (n *ntfyService) NotifyItemAbandoned(ctx context.Context, key, reason string) error {
	message := fmt.Sprintf("⚠️ Recording abandoned: %s", strings.TrimSpace(key))
	if reason = strings.TrimSpace(reason); reason != "" {
		message += "\nReason: " + reason
	}
	return n.send(ctx, payload{
		title:    "recflow - Recording Abandoned",
		message:  message,
		tags:     []string{"recflow", "abandoned", "warning"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyDeliveryFailed(ctx context.Context, key string, err error) error {
	if !n.errors {
		return nil
	}
	detail := "unknown"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	return n.send(ctx, payload{
		title:   "recflow - Delivery Failed",
		message: fmt.Sprintf("📤 Delivery of %s failed, will retry: %s", strings.TrimSpace(key), detail),
		tags:    []string{"recflow", "delivery", "retry"},
	})
}

func (n *ntfyService) NotifyCompleted(ctx context.Context, key string, tags []string, parts int) error {
	if !n.completions {
		return nil
	}
	message := fmt.Sprintf("✅ Delivered: %s", strings.TrimSpace(key))
	if len(tags) > 0 {
		message += "\nTags: " + strings.Join(tags, ", ")
	}
	if parts > 1 {
		message += fmt.Sprintf("\nParts: %d", parts)
	}
	return n.send(ctx, payload{
		title:   "recflow - Complete",
		message: message,
		tags:    []string{"recflow", "workflow", "completed"},
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	return n.send(ctx, payload{
		title:    "recflow - Error",
		message:  builder.String(),
		tags:     []string{"recflow", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "recflow - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"recflow", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyItemAbandoned(context.Context, string, string) error    { return nil }
func (noopService) NotifyDeliveryFailed(context.Context, string, error) error    { return nil }
func (noopService) NotifyCompleted(context.Context, string, []string, int) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error             { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
