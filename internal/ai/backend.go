package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"recflow/internal/config"
	"recflow/internal/logging"
	"recflow/internal/services"
	"recflow/internal/services/llm"
	"recflow/internal/services/whisperx"
)

// ErrEmptyTranscript means transcription produced no speech.
var ErrEmptyTranscript = errors.New("transcript is empty")

// Result is the output of one transcription and summary run.
type Result struct {
	// Transcript is the plain transcript text.
	Transcript string
	// Timestamped is the transcript with one "[hh:mm:ss] text" line per segment.
	Timestamped string
	Summary     string
}

// Backend is the AI capability used when finalizing an item.
type Backend interface {
	Enabled() bool
	// TranscribeAndSummarize may return a Result with Transcript set together
	// with an error when only the summary step failed.
	TranscribeAndSummarize(ctx context.Context, path string) (Result, error)
}

// Disabled is the Backend used when AI is switched off.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) TranscribeAndSummarize(context.Context, string) (Result, error) {
	return Result{}, services.Wrap(services.ErrConfiguration, "ai", "transcribe", "ai backend disabled", nil)
}

// Transcriber produces a transcript for a media file.
type Transcriber interface {
	Transcribe(ctx context.Context, source, workDir, language string) (whisperx.Transcript, error)
}

// Summarizer condenses a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, instructions, transcript string) (llm.Summary, error)
}

// Settings configures a Service.
type Settings struct {
	WorkDir  string
	Language string
	Prompt   string
}

// Service implements Backend with a Transcriber and a Summarizer.
type Service struct {
	transcriber Transcriber
	summarizer  Summarizer
	settings    Settings
	logger      *slog.Logger
}

// NewService wires a transcriber and summarizer into a Backend.
func NewService(transcriber Transcriber, summarizer Summarizer, settings Settings, logger *slog.Logger) *Service {
	if strings.TrimSpace(settings.Prompt) == "" {
		settings.Prompt = config.DefaultSummaryPrompt
	}
	return &Service{
		transcriber: transcriber,
		summarizer:  summarizer,
		settings:    settings,
		logger:      logging.NewComponentLogger(logger, "ai"),
	}
}

// FromConfig returns the Backend described by cfg: Disabled unless
// ai.enabled is set.
func FromConfig(cfg *config.Config, logger *slog.Logger) Backend {
	if !cfg.AI.Enabled {
		return Disabled{}
	}
	llmCfg := cfg.GetLLM()
	client := llm.NewClient(llm.Config{
		APIKey:         llmCfg.APIKey,
		BaseURL:        llmCfg.BaseURL,
		Model:          llmCfg.Model,
		Referer:        llmCfg.Referer,
		Title:          llmCfg.Title,
		TimeoutSeconds: llmCfg.TimeoutSeconds,
	})
	transcriber := whisperx.NewService(whisperx.Config{
		Model:       cfg.AI.WhisperXModel,
		CUDAEnabled: cfg.AI.WhisperXCUDAEnabled,
	}, cfg.FFmpegBinary())
	return NewService(transcriber, client, Settings{
		WorkDir:  cfg.Paths.WorkDir,
		Language: cfg.AI.Language,
		Prompt:   cfg.AI.SummaryPrompt,
	}, logger)
}

func (s *Service) Enabled() bool { return true }

// TranscribeAndSummarize transcribes path in a scratch directory under the
// work dir and summarizes the result. The scratch directory is removed
// before returning.
func (s *Service) TranscribeAndSummarize(ctx context.Context, path string) (Result, error) {
	logger := logging.WithContext(ctx, s.logger)
	dir, err := os.MkdirTemp(s.settings.WorkDir, "ai-*")
	if err != nil {
		return Result{}, fmt.Errorf("create transcription dir: %w", err)
	}
	defer os.RemoveAll(dir)

	start := time.Now()
	transcript, err := s.transcriber.Transcribe(ctx, path, dir, s.settings.Language)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "ai", "transcribe", "whisperx", err)
	}
	text := strings.TrimSpace(transcript.Text)
	if text == "" {
		return Result{}, ErrEmptyTranscript
	}
	res := Result{Transcript: text, Timestamped: transcript.Timestamped()}
	logger.Info("transcription complete",
		logging.String(logging.FieldEventType, "transcription_complete"),
		logging.Int("chars", len([]rune(text))),
		logging.Int("segments", len(transcript.Segments)),
		logging.Duration("elapsed", time.Since(start)),
	)

	start = time.Now()
	summary, err := s.summarizer.Summarize(ctx, s.settings.Prompt, text)
	if err != nil {
		return res, services.Wrap(services.ErrTransient, "ai", "summarize", "llm", err)
	}
	res.Summary = summary.Render()
	logger.Info("summary complete",
		logging.String(logging.FieldEventType, "summary_complete"),
		logging.Int("chars", len([]rune(res.Summary))),
		logging.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}
