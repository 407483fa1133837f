package testsupport

import (
	"context"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"recflow/internal/messaging"
)

// Sent records one outbound message of a FakeGateway.
type Sent struct {
	ID       int64
	Kind     string // text, media or file
	Dest     string
	Text     string
	Path     string
	MIME     string
	Keyboard messaging.Keyboard
}

// Edit records one keyboard refresh of a FakeGateway.
type Edit struct {
	Dest      string
	MessageID int64
	Keyboard  messaging.Keyboard
}

// FakeGateway is an in-memory messaging.Gateway. Hooks may return an error
// to fail a call; message ids increase from 100. Texts over
// messaging.MaxTextRunes are rejected with messaging.ErrTooLarge.
type FakeGateway struct {
	mu     sync.Mutex
	nextID int64
	events []messaging.Event
	sent   []Sent
	edits  []Edit

	TextHook  func(text string) error
	MediaHook func(path string) error
	FileHook  func(path, caption string) error
	EditHook  func(messageID int64) error
}

// NewFakeGateway returns an empty fake.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{nextID: 100}
}

func (g *FakeGateway) record(s Sent) int64 {
	g.nextID++
	s.ID = g.nextID
	g.sent = append(g.sent, s)
	return s.ID
}

// NextMessageID returns the id the next user message would get.
func (g *FakeGateway) NextMessageID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	return g.nextID
}

func (g *FakeGateway) SendText(_ context.Context, dest, text string, kb messaging.Keyboard) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.TextHook != nil {
		if err := g.TextHook(text); err != nil {
			return 0, err
		}
	}
	if utf8.RuneCountInString(text) > messaging.MaxTextRunes {
		return 0, messaging.ErrTooLarge
	}
	return g.record(Sent{Kind: "text", Dest: dest, Text: text, Keyboard: kb}), nil
}

func (g *FakeGateway) SendMedia(_ context.Context, dest, path, caption string, kb messaging.Keyboard) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.MediaHook != nil {
		if err := g.MediaHook(path); err != nil {
			return 0, err
		}
	}
	return g.record(Sent{Kind: "media", Dest: dest, Text: caption, Path: path, Keyboard: kb}), nil
}

func (g *FakeGateway) SendFile(_ context.Context, dest, path, caption, mimeType string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FileHook != nil {
		if err := g.FileHook(path, caption); err != nil {
			return 0, err
		}
	}
	return g.record(Sent{Kind: "file", Dest: dest, Text: caption, Path: path, MIME: mimeType}), nil
}

func (g *FakeGateway) EditKeyboard(_ context.Context, dest string, messageID int64, kb messaging.Keyboard) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.EditHook != nil {
		if err := g.EditHook(messageID); err != nil {
			return err
		}
	}
	g.edits = append(g.edits, Edit{Dest: dest, MessageID: messageID, Keyboard: kb})
	return nil
}

func (g *FakeGateway) PollEvents(_ context.Context, sinceID int64, _ time.Duration) ([]messaging.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []messaging.Event
	for _, ev := range g.events {
		if ev.ID > sinceID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Push queues inbound events for PollEvents.
func (g *FakeGateway) Push(events ...messaging.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, events...)
}

// Sent returns a copy of every outbound message so far.
func (g *FakeGateway) Sent() []Sent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.sent)
}

// SentOfKind filters Sent by kind.
func (g *FakeGateway) SentOfKind(kind string) []Sent {
	var out []Sent
	for _, s := range g.Sent() {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// Last returns the most recent outbound message.
func (g *FakeGateway) Last() (Sent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.sent) == 0 {
		return Sent{}, false
	}
	return g.sent[len(g.sent)-1], true
}

// Edits returns a copy of every keyboard refresh so far.
func (g *FakeGateway) Edits() []Edit {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.edits)
}
