package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and file locations.
type Paths struct {
	SourceDir string `toml:"source_dir"`
	WorkDir   string `toml:"work_dir"`
	StateFile string `toml:"state_file"`
	HistoryDB string `toml:"history_db"`
	LogDir    string `toml:"log_dir"`
}

// Telegram contains the chat gateway connection settings.
type Telegram struct {
	BotToken       string `toml:"bot_token"`
	ChatID         string `toml:"chat_id"`
	APIBaseURL     string `toml:"api_base_url"`
	PollTimeout    int    `toml:"poll_timeout"`
	RequestTimeout int    `toml:"request_timeout"`
	UploadTimeout  int    `toml:"upload_timeout"`
}

// Discovery controls how new recordings are found in the source directory.
type Discovery struct {
	Extensions       []string `toml:"extensions"`
	StabilitySeconds int      `toml:"stability_seconds"`
	MinAgeSeconds    int      `toml:"min_age_seconds"`
	ScanInterval     int      `toml:"scan_interval"`
	Watch            bool     `toml:"watch"`
}

// Preview controls the short clip sent when a recording is first offered.
type Preview struct {
	ClipSeconds   int     `toml:"clip_seconds"`
	StartFraction float64 `toml:"start_fraction"`
}

// TagOption is one entry of the fixed tag vocabulary rendered as buttons.
type TagOption struct {
	Name  string `toml:"name"`
	Label string `toml:"label"`
}

// Conversation contains the vocabulary used when talking to the user.
type Conversation struct {
	Tags         []TagOption       `toml:"tags"`
	Synonyms     map[string]string `toml:"synonyms"`
	Participants []string          `toml:"participants"`
	FallbackTag  string            `toml:"fallback_tag"`
	DebounceMS   int               `toml:"debounce_ms"`
}

// Reminders controls nudges for unanswered prompts.
type Reminders struct {
	BaseInterval   int    `toml:"base_interval"`
	MaxInterval    int    `toml:"max_interval"`
	Timezone       string `toml:"timezone"`
	NightStartHour int    `toml:"night_start_hour"`
	NightEndHour   int    `toml:"night_end_hour"`
}

// Delivery controls full-artifact uploads and their fallbacks.
type Delivery struct {
	TargetMB           int     `toml:"target_mb"`
	MinSegmentSeconds  int     `toml:"min_segment_seconds"`
	MaxAttempts        int     `toml:"max_attempts"`
	ShrinkFactor       float64 `toml:"shrink_factor"`
	SizeTolerance      float64 `toml:"size_tolerance"`
	RetryDelaySeconds  int     `toml:"retry_delay_seconds"`
	SendAsDocumentMIME string  `toml:"mime_type"`
}

// AI contains transcription and summary settings.
type AI struct {
	Enabled                bool   `toml:"enabled"`
	WhisperXModel          string `toml:"whisperx_model"`
	WhisperXCUDAEnabled    bool   `toml:"whisperx_cuda_enabled"`
	Language               string `toml:"language"`
	SendTranscript         bool   `toml:"send_transcript"`
	TranscriptPreviewChars int    `toml:"transcript_preview_chars"`
	SummaryPrompt          string `toml:"summary_prompt"`
}

// LLM contains the chat completion endpoint used for summaries.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy operator alerts.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completions    bool   `toml:"completions"`
	Errors         bool   `toml:"errors"`
}

// Workflow contains loop timing.
type Workflow struct {
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
	MaxFileMB     int    `toml:"max_file_mb"`
}

// Config encapsulates all configuration values for recflow.
//
// Configuration sections by subsystem:
//   - Paths: watched directory, scratch space, state and journal files
//   - Telegram: chat gateway credentials and timeouts
//   - Discovery: which files count as recordings and when they are stable
//   - Preview: preview clip length and position
//   - Conversation: tag vocabulary, synonyms and participant roster
//   - Reminders: nudge backoff and quiet hours
//   - Delivery: upload budget and split-retry tuning
//   - AI / LLM: transcription and summary backend
//   - Notifications: ntfy operator alerts
//   - Workflow / Logging: loop timing and log output
type Config struct {
	Paths         Paths         `toml:"paths"`
	Telegram      Telegram      `toml:"telegram"`
	Discovery     Discovery     `toml:"discovery"`
	Preview       Preview       `toml:"preview"`
	Conversation  Conversation  `toml:"conversation"`
	Reminders     Reminders     `toml:"reminders"`
	Delivery      Delivery      `toml:"delivery"`
	AI            AI            `toml:"ai"`
	LLM           LLM           `toml:"llm"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/recflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("recflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes to. The source
// directory is only checked, never created: a missing mount should be loud.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.WorkDir, c.Paths.LogDir, filepath.Dir(c.Paths.StateFile)}
	if c.Paths.HistoryDB != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.HistoryDB))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFprobeBinary returns the ffprobe executable name used for duration probes.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// FFmpegBinary returns the ffmpeg executable name used for clips and splits.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// Location resolves the reminder timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Reminders.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// TargetBytes returns the per-upload byte budget.
func (c *Config) TargetBytes() int64 {
	return int64(c.Delivery.TargetMB) * 1024 * 1024
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the LLM settings used for summaries.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}
