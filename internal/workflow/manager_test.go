package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"recflow/internal/ai"
	"recflow/internal/history"
	"recflow/internal/messaging"
	"recflow/internal/state"
	"recflow/internal/testsupport"
)

func TestOffersStableRecording(t *testing.T) {
	h := newHarness(t)
	h.addRecording("2026-03-09 standup.mp4", 1024)

	h.tick()

	item := h.pending()
	if item == nil {
		t.Fatal("expected a pending item")
	}
	if item.Key != "2026-03-09 standup.mp4" || item.Stage != state.StageTags {
		t.Fatalf("unexpected item %+v", item)
	}
	if item.Date != "2026-03-09" || item.DurationSeconds != 600 || item.Destination != "100" {
		t.Fatalf("unexpected snapshot %+v", item)
	}
	media := h.gw.SentOfKind("media")
	if len(media) != 1 {
		t.Fatalf("expected one preview, got %d", len(media))
	}
	if item.PromptID(state.StageTags) != media[0].ID || item.PreviewMessageID != media[0].ID {
		t.Fatalf("prompt id %d does not match preview %d", item.PromptID(state.StageTags), media[0].ID)
	}
	if len(media[0].Keyboard) == 0 || !strings.Contains(media[0].Text, "standup") {
		t.Fatalf("preview lacks keyboard or caption: %+v", media[0])
	}
	if item.Reminder.NextAt.IsZero() {
		t.Fatal("first reminder not scheduled")
	}
	if !slices.Contains(h.journal.kinds(), history.KindDiscovered) {
		t.Fatalf("discovery not journaled: %v", h.journal.kinds())
	}
}

func TestOnlyOneItemInFlight(t *testing.T) {
	h := newHarness(t)
	h.addRecording("a.mp4", 10)
	h.tick()
	first := h.pending().Key

	h.addRecording("b.mp4", 10)
	h.advance(time.Hour)
	h.tick()
	if got := h.pending().Key; got != first {
		t.Fatalf("pending switched from %q to %q", first, got)
	}
	if n := len(h.gw.SentOfKind("media")); n != 1 {
		t.Fatalf("expected one preview, got %d", n)
	}
}

func TestNoDestinationNoDiscovery(t *testing.T) {
	h := newHarness(t, testsupport.WithChatID(""))
	h.addRecording("a.mp4", 10)
	h.tick()
	if h.pending() != nil {
		t.Fatal("item started without a destination")
	}

	h.eventID++
	h.gw.Push(messaging.Event{ID: h.eventID, Kind: messaging.EventText, Destination: "555", MessageID: 1, Text: "/start"})
	h.changes.dirty = true
	h.tick()

	if h.store.Destination() != "555" {
		t.Fatalf("destination not learned: %q", h.store.Destination())
	}
	item := h.pending()
	if item == nil || item.Destination != "555" {
		t.Fatalf("expected item for learned destination, got %+v", item)
	}
	if h.store.Watermark() != h.eventID {
		t.Fatalf("watermark = %d, want %d", h.store.Watermark(), h.eventID)
	}
}

func TestProbeFailureRetriesLater(t *testing.T) {
	h := newHarness(t)
	h.media.probeErr = errors.New("moov atom not found")
	h.addRecording("a.mp4", 10)
	h.tick()
	if h.pending() != nil {
		t.Fatal("probe failure must not create an item")
	}

	h.media.probeErr = nil
	h.advance(time.Minute)
	h.tick()
	if h.pending() == nil {
		t.Fatal("expected item on the next scan")
	}
}

func TestHappyPathDeliversAndCompletes(t *testing.T) {
	h := newHarness(t)
	source := h.addRecording("calls/a.mp4", 2048)
	h.tick()
	h.answerAll()
	h.tick()

	if h.pending() != nil {
		t.Fatalf("pending not cleared: %+v", h.pending())
	}
	record, ok := h.store.Completed("calls/a.mp4")
	if !ok {
		t.Fatal("completion record missing")
	}
	if !slices.Equal(record.Tags, []string{"мок"}) || len(record.Participants) != 0 {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.Transcription != state.TranscriptionDisabled || record.SummaryRequested || record.Parts != 1 {
		t.Fatalf("unexpected record %+v", record)
	}
	files := h.gw.SentOfKind("file")
	if len(files) != 1 || files[0].Path != source || files[0].MIME != "video/mp4" {
		t.Fatalf("unexpected file deliveries %+v", files)
	}
	if !strings.Contains(files[0].Text, "#мок") {
		t.Fatalf("caption lacks tags: %q", files[0].Text)
	}
	last, _ := h.gw.Last()
	if !strings.HasPrefix(last.Text, "Готово") {
		t.Fatalf("expected completion message, got %q", last.Text)
	}
	if len(h.journal.completions) != 1 || !slices.Equal(h.notifier.completed, []string{"calls/a.mp4"}) {
		t.Fatalf("completion not journaled or notified")
	}

	// Restart: the completed key is never offered again.
	h.open()
	h.changes.dirty = true
	h.advance(time.Hour)
	h.tick()
	if h.pending() != nil {
		t.Fatal("completed recording offered again after restart")
	}
}

func TestTooLargeFallsBackToSplit(t *testing.T) {
	h := newHarness(t)
	source := h.addRecording("big.mp4", 4096)
	h.gw.FileHook = func(path, _ string) error {
		if path == source {
			return messaging.ErrTooLarge
		}
		return nil
	}
	h.tick()
	h.answerAll()
	h.tick()

	record, ok := h.store.Completed("big.mp4")
	if !ok || record.Parts != 3 {
		t.Fatalf("expected split completion with 3 parts, got %+v (%v)", record, ok)
	}
	if h.media.splits != 1 {
		t.Fatalf("expected one split, got %d", h.media.splits)
	}
	parts := h.gw.SentOfKind("file")
	if len(parts) != 3 || !strings.HasPrefix(parts[0].Text, "[1/3]") {
		t.Fatalf("unexpected parts %+v", parts)
	}
	if !slices.Contains(h.journal.kinds(), history.KindSplitDelivered) {
		t.Fatalf("split delivery not journaled: %v", h.journal.kinds())
	}
}

func TestOversizedSkipsFullUpload(t *testing.T) {
	h := newHarness(t)
	h.cfg.Delivery.TargetMB = 1
	h.open()
	source := h.addRecording("huge.mp4", 2*1024*1024)
	h.tick()
	h.answerAll()
	h.tick()

	for _, f := range h.gw.SentOfKind("file") {
		if f.Path == source {
			t.Fatal("oversized recording was uploaded whole")
		}
	}
	if _, ok := h.store.Completed("huge.mp4"); !ok {
		t.Fatal("expected completion after split delivery")
	}
}

func TestDeliveryFailureRetriesAfterDelay(t *testing.T) {
	h := newHarness(t)
	h.addRecording("a.mp4", 10)
	fail := true
	h.gw.FileHook = func(string, string) error {
		if fail {
			return errors.New("connection reset")
		}
		return nil
	}
	h.tick()
	h.answerAll()
	h.tick()

	item := h.pending()
	if item == nil || !item.RetryNoticeSent || !item.RetryAt.Equal(h.now.Add(60*time.Second)) {
		t.Fatalf("retry not armed: %+v", item)
	}
	notices := countText(h.gw, "Не удалось отправить")
	if notices != 1 || len(h.notifier.failed) != 1 {
		t.Fatalf("expected one notice, got %d chat / %d ntfy", notices, len(h.notifier.failed))
	}

	// Still failing after the delay: no second notice.
	h.advance(61 * time.Second)
	h.tick()
	if countText(h.gw, "Не удалось отправить") != 1 {
		t.Fatal("retry notice repeated within one failure episode")
	}

	// Within the cool-down nothing is attempted.
	h.advance(10 * time.Second)
	h.tick()

	fail = false
	h.advance(time.Minute)
	h.tick()
	if _, ok := h.store.Completed("a.mp4"); !ok {
		t.Fatal("expected completion after retry")
	}
}

func TestMissingSourceAbandons(t *testing.T) {
	h := newHarness(t)
	source := h.addRecording("gone.mp4", 10)
	h.tick()
	h.answerAll()
	if err := os.Remove(source); err != nil {
		t.Fatal(err)
	}
	h.tick()

	if h.pending() != nil {
		t.Fatal("abandoned item still pending")
	}
	if h.store.IsCompleted("gone.mp4") {
		t.Fatal("abandoned item must not be completed")
	}
	if countText(h.gw, "пропал") != 1 || !slices.Equal(h.notifier.abandoned, []string{"gone.mp4"}) {
		t.Fatal("abandonment not reported")
	}
	if !slices.Contains(h.journal.kinds(), history.KindAbandoned) {
		t.Fatalf("abandonment not journaled: %v", h.journal.kinds())
	}
}

func TestReappearingSourceWaitsForStabilityAgain(t *testing.T) {
	h := newHarness(t, testsupport.WithStability(60))
	source := h.addRecording("back.mp4", 10)
	info, err := os.Stat(source)
	if err != nil {
		t.Fatal(err)
	}
	mod := info.ModTime()

	h.tick()
	if h.pending() != nil {
		t.Fatal("offered before the stability window elapsed")
	}
	h.advance(61 * time.Second)
	h.changes.dirty = true
	h.tick()
	if h.pending() == nil {
		t.Fatal("expected the recording to be offered")
	}

	h.answerAll()
	if err := os.Remove(source); err != nil {
		t.Fatal(err)
	}
	h.tick()
	if h.pending() != nil {
		t.Fatal("expected abandonment")
	}

	testsupport.WriteFile(t, source, 10)
	testsupport.SetModTime(t, source, mod)
	h.advance(time.Second)
	h.changes.dirty = true
	h.tick()
	if h.pending() != nil {
		t.Fatal("reappeared file offered without a fresh stability window")
	}
	h.advance(61 * time.Second)
	h.changes.dirty = true
	h.tick()
	if item := h.pending(); item == nil || item.Key != "back.mp4" {
		t.Fatalf("expected back.mp4 to be offered again, got %+v", item)
	}
}

func TestCompletedButStillPendingIsCleared(t *testing.T) {
	h := newHarness(t)
	h.store.MarkCompleted(state.CompletedItem{Key: "a.mp4", ProcessedAt: h.now})
	h.store.SetPending(&state.PendingItem{
		Key:               "a.mp4",
		Destination:       "100",
		Stage:             state.StageReadyToFinalize,
		Tags:              []string{"мок"},
		ParticipantsFinal: true,
	})
	if err := h.store.Save(); err != nil {
		t.Fatal(err)
	}
	h.open()
	h.tick()

	if h.pending() != nil {
		t.Fatal("pending not cleared")
	}
	if len(h.gw.SentOfKind("file")) != 0 {
		t.Fatal("recording resent after crash")
	}
}

func TestDeliveredFlagSkipsResend(t *testing.T) {
	h := newHarness(t)
	h.addRecording("a.mp4", 10)
	h.tick()
	item := h.pending()
	item.Stage = state.StageReadyToFinalize
	item.Tags = []string{"мок"}
	item.ParticipantsFinal = true
	item.Delivered = true
	item.DeliveredParts = 1
	h.store.SetPending(item)
	if err := h.store.Save(); err != nil {
		t.Fatal(err)
	}
	h.tick()

	if len(h.gw.SentOfKind("file")) != 0 {
		t.Fatal("delivered recording sent again")
	}
	if record, ok := h.store.Completed("a.mp4"); !ok || record.Parts != 1 {
		t.Fatalf("unexpected completion %+v", record)
	}
}

func TestIncompleteReadyItemFallsBack(t *testing.T) {
	h := newHarness(t)
	h.addRecording("a.mp4", 10)
	h.tick()
	item := h.pending()
	item.Stage = state.StageReadyToFinalize
	item.Tags = []string{"мок"}
	item.ParticipantsFinal = false
	h.store.SetPending(item)
	if err := h.store.Save(); err != nil {
		t.Fatal(err)
	}

	h.tick()
	if got := h.pending().Stage; got != state.StageParticipants {
		t.Fatalf("stage = %s, want participants", got)
	}
	h.tick()
	if h.pending().PromptID(state.StageParticipants) == 0 {
		t.Fatal("participants prompt not re-sent")
	}
}

func TestSummaryRequestedRunsAI(t *testing.T) {
	h := newHarness(t, testsupport.WithAI("key"))
	h.ai.result = ai.Result{
		Transcript:  "привет это созвон",
		Timestamped: "[00:00:01] привет это созвон",
		Summary:     "Короткий созвон.",
	}
	h.addRecording("a.mp4", 10)
	h.tick()
	h.answerAll()
	h.tick()

	item := h.pending()
	if item == nil || item.Stage != state.StageSummaryChoice {
		t.Fatalf("expected summary choice, got %+v", item)
	}
	h.press("sy")
	h.tick()

	record, ok := h.store.Completed("a.mp4")
	if !ok {
		t.Fatal("completion missing")
	}
	if record.Transcription != state.TranscriptionOK || !record.SummaryRequested {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.TranscriptChars != len([]rune("привет это созвон")) || record.Summary != "Короткий созвон." {
		t.Fatalf("unexpected transcript fields %+v", record)
	}
	if countText(h.gw, "Короткий созвон.") != 1 {
		t.Fatal("summary not sent")
	}
	var transcript bool
	for _, f := range h.gw.SentOfKind("file") {
		if f.MIME == "text/plain" && filepath.Ext(f.Path) == ".txt" {
			transcript = true
		}
	}
	if !transcript {
		t.Fatal("transcript file not sent")
	}
}

func TestLongSummaryIsSentInParts(t *testing.T) {
	h := newHarness(t, testsupport.WithAI("key"))
	paragraphs := []string{
		strings.TrimSpace(strings.Repeat("решение ", 300)),
		strings.TrimSpace(strings.Repeat("задача ", 350)),
		strings.TrimSpace(strings.Repeat("вопрос ", 350)),
	}
	summary := strings.Join(paragraphs, "\n\n")
	h.ai.result = ai.Result{Transcript: "длинный созвон", Summary: summary}
	h.addRecording("a.mp4", 10)
	h.tick()
	h.answerAll()
	h.tick()
	h.press("sy")
	h.tick()

	record, ok := h.store.Completed("a.mp4")
	if !ok || record.Transcription != state.TranscriptionOK || record.Summary != summary {
		t.Fatalf("unexpected record %+v", record)
	}
	if countText(h.gw, "Выжимка: a.mp4") != 1 {
		t.Fatal("summary header should be sent once")
	}
	for _, p := range paragraphs {
		if countText(h.gw, p) != 1 {
			t.Fatalf("paragraph of %d runes not delivered intact", len([]rune(p)))
		}
	}
	for _, sent := range h.gw.SentOfKind("text") {
		if n := len([]rune(sent.Text)); n > messaging.MaxTextRunes {
			t.Fatalf("text of %d runes exceeds the message limit", n)
		}
	}
}

func TestRejectedSummaryFallsBackToFile(t *testing.T) {
	h := newHarness(t, testsupport.WithAI("key"))
	h.ai.result = ai.Result{Transcript: "созвон", Summary: "Итоги встречи."}
	h.addRecording("a.mp4", 10)
	h.tick()
	h.answerAll()
	h.tick()
	h.gw.TextHook = func(text string) error {
		if strings.HasPrefix(text, "Выжимка") {
			return messaging.ErrTooLarge
		}
		return nil
	}
	h.press("sy")
	h.tick()

	if _, ok := h.store.Completed("a.mp4"); !ok {
		t.Fatal("completion missing")
	}
	var summaryFile bool
	for _, f := range h.gw.SentOfKind("file") {
		if f.MIME == "text/plain" && filepath.Base(f.Path) == "a summary.txt" {
			summaryFile = true
		}
	}
	if !summaryFile {
		t.Fatalf("summary file not sent: %+v", h.gw.SentOfKind("file"))
	}
	if countText(h.gw, "Готово: a.mp4") != 1 {
		t.Fatal("completion message missing")
	}
}

func TestSummaryDeclinedSkipsAI(t *testing.T) {
	h := newHarness(t, testsupport.WithAI("key"))
	h.addRecording("a.mp4", 10)
	h.tick()
	h.answerAll()
	h.tick()
	h.say("нет")
	h.tick()

	record, ok := h.store.Completed("a.mp4")
	if !ok || record.Transcription != state.TranscriptionSkippedByUser {
		t.Fatalf("unexpected record %+v", record)
	}
	if h.ai.calls != 0 {
		t.Fatal("AI ran although the summary was declined")
	}
}

func TestTranscriptionFailureStillCompletes(t *testing.T) {
	h := newHarness(t, testsupport.WithAI("key"))
	h.ai.err = errors.New("whisperx exited 1")
	h.addRecording("a.mp4", 10)
	h.tick()
	h.answerAll()
	h.tick()
	h.press("sy")
	h.tick()

	record, ok := h.store.Completed("a.mp4")
	if !ok || record.Transcription != state.TranscriptionFailed {
		t.Fatalf("unexpected record %+v", record)
	}
	if !slices.Contains(h.journal.kinds(), history.KindAIFailed) {
		t.Fatalf("AI failure not journaled: %v", h.journal.kinds())
	}
}

func TestReminderSentWhenDue(t *testing.T) {
	h := newHarness(t)
	h.addRecording("a.mp4", 10)
	h.tick()
	h.advance(16 * time.Minute)
	h.tick()

	if countText(h.gw, "Напоминание") != 1 {
		t.Fatal("expected one reminder")
	}
	if got := h.pending().Reminder.Attempt; got != 1 {
		t.Fatalf("attempt = %d", got)
	}
	h.tick()
	if countText(h.gw, "Напоминание") != 1 {
		t.Fatal("reminder repeated before the next interval")
	}
}

func TestEventsAreConsumedOnce(t *testing.T) {
	h := newHarness(t)
	h.addRecording("a.mp4", 10)
	h.tick()
	h.press("t:мок")
	h.tick()
	h.advance(5 * time.Second)

	// The fake keeps returning every event above the watermark; a replay
	// would toggle the tag off again.
	h.tick()
	if tags := h.pending().Tags; !slices.Equal(tags, []string{"мок"}) {
		t.Fatalf("tags = %v", tags)
	}

	h.open()
	h.tick()
	if tags := h.pending().Tags; !slices.Equal(tags, []string{"мок"}) {
		t.Fatalf("tags after restart = %v", tags)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.mgr.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if h.mgr.Status().Running {
		t.Fatal("manager still reported running")
	}
}

func countText(gw *testsupport.FakeGateway, substr string) int {
	n := 0
	for _, s := range gw.SentOfKind("text") {
		if strings.Contains(s.Text, substr) {
			n++
		}
	}
	return n
}
