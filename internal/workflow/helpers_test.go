package workflow_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"recflow/internal/ai"
	"recflow/internal/config"
	"recflow/internal/history"
	"recflow/internal/logging"
	"recflow/internal/messaging"
	"recflow/internal/state"
	"recflow/internal/testsupport"
	"recflow/internal/workflow"
)

// fakeMedia probes a fixed duration and writes small clips and parts.
type fakeMedia struct {
	t        *testing.T
	duration float64
	probeErr error
	parts    int
	clips    int
	splits   int
}

func (f *fakeMedia) ProbeDuration(context.Context, string) (float64, error) {
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	return f.duration, nil
}

func (f *fakeMedia) ExtractClip(_ context.Context, _, outPath string, _, _ float64) error {
	f.clips++
	testsupport.WriteFile(f.t, outPath, 64)
	return nil
}

func (f *fakeMedia) SplitIntoSegments(_ context.Context, _, outDir, prefix string, _ float64) ([]string, error) {
	f.splits++
	paths := make([]string, 0, f.parts)
	for i := range f.parts {
		path := filepath.Join(outDir, fmt.Sprintf("%s%03d.mp4", prefix, i))
		testsupport.WriteFile(f.t, path, 128)
		paths = append(paths, path)
	}
	return paths, nil
}

type fakeAI struct {
	enabled bool
	result  ai.Result
	err     error
	calls   int
}

func (f *fakeAI) Enabled() bool { return f.enabled }

func (f *fakeAI) TranscribeAndSummarize(context.Context, string) (ai.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeJournal struct {
	mu          sync.Mutex
	events      []history.Event
	completions []state.CompletedItem
}

func (j *fakeJournal) Record(_ context.Context, ev history.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	return nil
}

func (j *fakeJournal) RecordCompletion(_ context.Context, item state.CompletedItem) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.completions = append(j.completions, item)
	return nil
}

func (j *fakeJournal) kinds() []history.Kind {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]history.Kind, 0, len(j.events))
	for _, ev := range j.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fakeNotifier struct {
	abandoned []string
	failed    []string
	completed []string
}

func (n *fakeNotifier) NotifyItemAbandoned(_ context.Context, key, _ string) error {
	n.abandoned = append(n.abandoned, key)
	return nil
}

func (n *fakeNotifier) NotifyDeliveryFailed(_ context.Context, key string, _ error) error {
	n.failed = append(n.failed, key)
	return nil
}

func (n *fakeNotifier) NotifyCompleted(_ context.Context, key string, _ []string, _ int) error {
	n.completed = append(n.completed, key)
	return nil
}

func (n *fakeNotifier) NotifyError(context.Context, error, string) error { return nil }

func (n *fakeNotifier) TestNotification(context.Context) error { return nil }

type dirtyFlag struct{ dirty bool }

func (d *dirtyFlag) TakeDirty() bool {
	v := d.dirty
	d.dirty = false
	return v
}

var moscow = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		panic(err)
	}
	return loc
}()

type harness struct {
	t        *testing.T
	cfg      *config.Config
	store    *state.Store
	gw       *testsupport.FakeGateway
	media    *fakeMedia
	ai       *fakeAI
	journal  *fakeJournal
	notifier *fakeNotifier
	changes  *dirtyFlag
	now      time.Time
	eventID  int64
	mgr      *workflow.Manager
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	h := &harness{
		t:        t,
		cfg:      cfg,
		gw:       testsupport.NewFakeGateway(),
		media:    &fakeMedia{t: t, duration: 600, parts: 3},
		ai:       &fakeAI{enabled: cfg.AI.Enabled},
		journal:  &fakeJournal{},
		notifier: &fakeNotifier{},
		changes:  &dirtyFlag{},
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, moscow),
	}
	h.open()
	return h
}

// open (re)creates the store and manager, as a process restart would.
func (h *harness) open() {
	h.t.Helper()
	if h.store != nil {
		_ = h.store.Close()
	}
	h.store = testsupport.MustOpenState(h.t, h.cfg)
	mgr, err := workflow.NewManager(h.cfg, workflow.Deps{
		Store:    h.store,
		Gateway:  h.gw,
		Media:    h.media,
		AI:       h.ai,
		Journal:  h.journal,
		Notifier: h.notifier,
		Changes:  h.changes,
		Now:      func() time.Time { return h.now },
	}, logging.NewNop())
	if err != nil {
		h.t.Fatalf("NewManager: %v", err)
	}
	h.mgr = mgr
}

func (h *harness) tick() {
	h.t.Helper()
	if err := h.mgr.Tick(context.Background()); err != nil {
		h.t.Fatalf("Tick: %v", err)
	}
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

// addRecording writes a recording older than the harness clock and marks
// the source directory dirty.
func (h *harness) addRecording(name string, size int64) string {
	h.t.Helper()
	path := filepath.Join(h.cfg.Paths.SourceDir, filepath.FromSlash(name))
	testsupport.WriteFile(h.t, path, size)
	testsupport.SetModTime(h.t, path, h.now.Add(-time.Hour))
	h.changes.dirty = true
	return path
}

func (h *harness) pending() *state.PendingItem {
	return h.store.Pending()
}

func (h *harness) press(payload string) {
	h.t.Helper()
	item := h.pending()
	if item == nil {
		h.t.Fatal("press without a pending item")
	}
	h.eventID++
	h.gw.Push(messaging.Event{
		ID:          h.eventID,
		Kind:        messaging.EventButton,
		Destination: item.Destination,
		MessageID:   item.PromptID(item.Stage),
		Payload:     payload,
	})
}

func (h *harness) say(text string) {
	h.eventID++
	h.gw.Push(messaging.Event{
		ID:          h.eventID,
		Kind:        messaging.EventText,
		Destination: h.cfg.Telegram.ChatID,
		MessageID:   h.gw.NextMessageID(),
		Text:        text,
	})
}

// answerAll drives a freshly offered item to ready_to_finalize.
func (h *harness) answerAll() {
	h.t.Helper()
	h.press("t:мок")
	h.tick()
	h.press("td")
	h.tick()
	h.say("-")
}
