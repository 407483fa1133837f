package whisperx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CommandRunner executes an external command to completion.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Service provides WhisperX transcription capabilities.
type Service struct {
	cfg           Config
	ffmpegBinary  string
	commandRunner CommandRunner
}

// NewService creates a WhisperX service with the given configuration.
func NewService(cfg Config, ffmpegBinary string) *Service {
	if ffmpegBinary == "" {
		ffmpegBinary = FFmpegCommand
	}
	return &Service{cfg: cfg, ffmpegBinary: ffmpegBinary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner CommandRunner) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load default to weights_only=true, which breaks
	// WhisperX checkpoints.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Transcript is the result of one transcription run.
type Transcript struct {
	Text     string
	Segments []Segment
	JSONPath string
}

// Transcribe extracts audio from the recording at source and runs WhisperX on
// it. Intermediate files live under workDir, which the caller owns.
func (s *Service) Transcribe(ctx context.Context, source, workDir, language string) (Transcript, error) {
	var result Transcript
	if source == "" {
		return result, fmt.Errorf("transcribe: source path required")
	}
	if workDir == "" {
		return result, fmt.Errorf("transcribe: work dir required")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return result, fmt.Errorf("transcribe: ensure work dir: %w", err)
	}

	audioPath := filepath.Join(workDir, "audio.wav")
	if err := s.run(ctx, s.ffmpegBinary, buildExtractArgs(source, audioPath)...); err != nil {
		return result, fmt.Errorf("transcribe: extract audio: %w", err)
	}
	if err := s.run(ctx, UVXCommand, s.buildArgs(audioPath, workDir, language)...); err != nil {
		return result, fmt.Errorf("whisperx: %w", err)
	}

	result.JSONPath = filepath.Join(workDir, "audio.json")
	segments, err := LoadSegments(result.JSONPath)
	if err != nil {
		return result, fmt.Errorf("whisperx: load output: %w", err)
	}
	result.Segments = segments
	result.Text = joinSegments(segments)
	return result, nil
}

func (s *Service) buildArgs(source, outputDir, language string) []string {
	args := make([]string, 0, 32)
	if s.cfg.CUDAEnabled {
		args = append(args, "--index-url", CUDAIndexURL, "--extra-index-url", PypiIndexURL)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}
	args = append(args,
		"whisperx",
		source,
		"--model", s.Model(),
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--chunk_size", ChunkSize,
		"--beam_size", BeamSize,
		"--vad_method", VADMethod,
	)
	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "--language", lang)
	}
	if s.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}
	return args
}

// normalizeLanguage accepts ISO 639-1 codes and region-tagged variants ("ru-RU").
func normalizeLanguage(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if before, _, ok := strings.Cut(lang, "-"); ok {
		lang = before
	}
	if len(lang) != 2 {
		return ""
	}
	return lang
}

// Segment represents a transcribed segment from WhisperX JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type whisperXPayload struct {
	Segments []Segment `json:"segments"`
}

// LoadSegments loads segments from a WhisperX JSON file.
func LoadSegments(jsonPath string) ([]Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var payload whisperXPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisperx json: %w", err)
	}
	return payload.Segments, nil
}

func joinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Timestamped renders one "[hh:mm:ss] text" line per non-empty segment.
func (t Transcript) Timestamped() string {
	var b strings.Builder
	for _, seg := range t.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		total := int(seg.Start)
		fmt.Fprintf(&b, "[%02d:%02d:%02d] %s\n", total/3600, total/60%60, total%60, text)
	}
	return b.String()
}
