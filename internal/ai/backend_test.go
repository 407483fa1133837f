package ai_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"recflow/internal/ai"
	"recflow/internal/logging"
	"recflow/internal/services"
	"recflow/internal/services/llm"
	"recflow/internal/services/whisperx"
	"recflow/internal/testsupport"
)

type fakeTranscriber struct {
	transcript whisperx.Transcript
	err        error
	dir        string
	language   string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _, workDir, language string) (whisperx.Transcript, error) {
	f.dir = workDir
	f.language = language
	return f.transcript, f.err
}

type fakeSummarizer struct {
	summary llm.Summary
	err     error
	prompt  string
	input   string
}

func (f *fakeSummarizer) Summarize(_ context.Context, instructions, transcript string) (llm.Summary, error) {
	f.prompt = instructions
	f.input = transcript
	return f.summary, f.err
}

func TestFromConfigDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	backend := ai.FromConfig(cfg, logging.NewNop())
	if backend.Enabled() {
		t.Fatal("expected disabled backend")
	}
	if _, err := backend.TranscribeAndSummarize(context.Background(), "x.mp4"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestFromConfigEnabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAI("key"))
	if !ai.FromConfig(cfg, logging.NewNop()).Enabled() {
		t.Fatal("expected enabled backend")
	}
}

func TestTranscribeAndSummarize(t *testing.T) {
	workDir := t.TempDir()
	tr := &fakeTranscriber{transcript: whisperx.Transcript{
		Text:     "привет всем",
		Segments: []whisperx.Segment{{Text: "привет всем", Start: 1}},
	}}
	sum := &fakeSummarizer{summary: llm.Summary{Overview: "Короткий созвон.", ActionItems: []string{"Отправить резюме"}}}
	svc := ai.NewService(tr, sum, ai.Settings{WorkDir: workDir, Language: "ru", Prompt: "Summarize"}, logging.NewNop())

	res, err := svc.TranscribeAndSummarize(context.Background(), "/src/call.mp4")
	if err != nil {
		t.Fatalf("TranscribeAndSummarize: %v", err)
	}
	if res.Transcript != "привет всем" || !strings.Contains(res.Timestamped, "[00:00:01]") {
		t.Fatalf("unexpected transcript %+v", res)
	}
	if !strings.Contains(res.Summary, "Короткий созвон.") || !strings.Contains(res.Summary, "• Отправить резюме") {
		t.Fatalf("unexpected summary %q", res.Summary)
	}
	if sum.prompt != "Summarize" || sum.input != "привет всем" || tr.language != "ru" {
		t.Fatalf("collaborators called with prompt=%q input=%q lang=%q", sum.prompt, sum.input, tr.language)
	}
	if _, err := os.Stat(tr.dir); !os.IsNotExist(err) {
		t.Fatalf("scratch dir %s not removed", tr.dir)
	}
}

func TestEmptyTranscript(t *testing.T) {
	tr := &fakeTranscriber{transcript: whisperx.Transcript{Text: "  "}}
	svc := ai.NewService(tr, &fakeSummarizer{}, ai.Settings{WorkDir: t.TempDir()}, logging.NewNop())
	if _, err := svc.TranscribeAndSummarize(context.Background(), "a.mp4"); !errors.Is(err, ai.ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
}

func TestSummaryFailureKeepsTranscript(t *testing.T) {
	tr := &fakeTranscriber{transcript: whisperx.Transcript{Text: "текст"}}
	sum := &fakeSummarizer{err: errors.New("503")}
	svc := ai.NewService(tr, sum, ai.Settings{WorkDir: t.TempDir()}, logging.NewNop())

	res, err := svc.TranscribeAndSummarize(context.Background(), "a.mp4")
	if err == nil || !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if res.Transcript != "текст" || res.Summary != "" {
		t.Fatalf("unexpected partial result %+v", res)
	}
}

func TestTranscriberFailure(t *testing.T) {
	tr := &fakeTranscriber{err: errors.New("uvx missing")}
	svc := ai.NewService(tr, &fakeSummarizer{}, ai.Settings{WorkDir: t.TempDir()}, logging.NewNop())
	if _, err := svc.TranscribeAndSummarize(context.Background(), "a.mp4"); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}
