// Package messaging defines the chat gateway contract the workflow talks
// through: sending prompts, media and files, refreshing inline keyboards, and
// long-polling inbound button presses and text replies.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrTooLarge is returned when the transport rejects a payload because of its
// size: an upload over the file limit or a text over MaxTextRunes.
var ErrTooLarge = errors.New("payload too large")

// MaxTextRunes is the longest text one SendText call may carry.
const MaxTextRunes = 4096

// RateLimitError reports that the transport asked the caller to back off.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

// RetryAfter extracts the back-off hint from err, if it is a rate limit.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// Button is one inline keyboard button. Payload is opaque to the gateway.
type Button struct {
	Label   string
	Payload string
}

// Keyboard is a grid of buttons, row-major.
type Keyboard [][]Button

// EventKind distinguishes button presses from text replies.
type EventKind int

const (
	EventText EventKind = iota
	EventButton
)

func (k EventKind) String() string {
	if k == EventButton {
		return "button"
	}
	return "text"
}

// Event is one inbound update. ID is the transport's monotonically increasing
// update id; MessageID is the message the button hangs off (EventButton) or
// the text message itself (EventText).
type Event struct {
	ID          int64
	Kind        EventKind
	Destination string
	MessageID   int64
	Payload     string
	Text        string
}

// Gateway is the chat transport used by the workflow.
type Gateway interface {
	SendText(ctx context.Context, dest, text string, kb Keyboard) (int64, error)
	SendMedia(ctx context.Context, dest, path, caption string, kb Keyboard) (int64, error)
	SendFile(ctx context.Context, dest, path, caption, mimeType string) (int64, error)
	EditKeyboard(ctx context.Context, dest string, messageID int64, kb Keyboard) error
	// PollEvents returns events with ID > sinceID, blocking up to timeout.
	PollEvents(ctx context.Context, sinceID int64, timeout time.Duration) ([]Event, error)
}

// SplitText cuts text into chunks of at most limit runes. Cuts prefer a
// paragraph break, then a line break, then a space, in the second half of
// the chunk; otherwise the chunk is cut at the limit.
func SplitText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := splitPoint(runes[:limit])
		if chunk := strings.TrimSpace(string(runes[:cut])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = []rune(strings.TrimLeft(string(runes[cut:]), " \n"))
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

func splitPoint(window []rune) int {
	s := string(window)
	for _, sep := range []string{"\n\n", "\n", " "} {
		idx := strings.LastIndex(s, sep)
		if idx <= 0 {
			continue
		}
		if cut := utf8.RuneCountInString(s[:idx]); cut >= len(window)/2 {
			return cut
		}
	}
	return len(window)
}
