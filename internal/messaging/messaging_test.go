package messaging_test

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"recflow/internal/messaging"
)

func TestRetryAfterUnwraps(t *testing.T) {
	err := fmt.Errorf("edit keyboard: %w", &messaging.RateLimitError{RetryAfter: 7 * time.Second})
	got, ok := messaging.RetryAfter(err)
	if !ok || got != 7*time.Second {
		t.Fatalf("unexpected retry after %v %v", got, ok)
	}
	if _, ok := messaging.RetryAfter(errors.New("other")); ok {
		t.Fatal("plain error is not a rate limit")
	}
}

func TestEventKindString(t *testing.T) {
	if messaging.EventButton.String() != "button" || messaging.EventText.String() != "text" {
		t.Fatal("unexpected kind names")
	}
}

func TestSplitText(t *testing.T) {
	paragraph := strings.Repeat("слово ", 30) // 180 runes
	text := strings.TrimSpace(paragraph) + "\n\n" + strings.TrimSpace(paragraph) + "\n\n" + strings.TrimSpace(paragraph)

	chunks := messaging.SplitText(text, 400)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[0] != strings.TrimSpace(paragraph)+"\n\n"+strings.TrimSpace(paragraph) {
		t.Fatalf("first chunk should end at a paragraph break: %q", chunks[0])
	}
	for _, chunk := range chunks {
		if n := utf8.RuneCountInString(chunk); n > 400 {
			t.Fatalf("chunk has %d runes", n)
		}
	}

	unbroken := strings.Repeat("я", 10)
	got := messaging.SplitText(unbroken, 4)
	if want := []string{"яяяя", "яяяя", "яя"}; !slices.Equal(got, want) {
		t.Fatalf("hard cut = %q, want %q", got, want)
	}

	if got := messaging.SplitText("  short  ", messaging.MaxTextRunes); !slices.Equal(got, []string{"short"}) {
		t.Fatalf("short text = %q", got)
	}
	if got := messaging.SplitText("   ", 10); got != nil {
		t.Fatalf("blank text = %q", got)
	}
}
