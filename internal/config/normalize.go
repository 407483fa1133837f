package config

import (
	"fmt"
	"os"
	"strings"

	"recflow/internal/textutil"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTelegram()
	c.normalizeDiscovery()
	c.normalizeConversation()
	c.normalizeAI()
	c.normalizeLLM()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.SourceDir, err = expandPath(c.Paths.SourceDir); err != nil {
		return fmt.Errorf("paths.source_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateFile) == "" {
		c.Paths.StateFile = defaultStateFile
	}
	if c.Paths.StateFile, err = expandPath(c.Paths.StateFile); err != nil {
		return fmt.Errorf("paths.state_file: %w", err)
	}
	if c.Paths.HistoryDB, err = expandPath(c.Paths.HistoryDB); err != nil {
		return fmt.Errorf("paths.history_db: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTelegram() {
	c.Telegram.BotToken = strings.TrimSpace(c.Telegram.BotToken)
	if c.Telegram.BotToken == "" {
		if value, ok := os.LookupEnv("RECFLOW_BOT_TOKEN"); ok {
			c.Telegram.BotToken = strings.TrimSpace(value)
		}
	}
	c.Telegram.ChatID = strings.TrimSpace(c.Telegram.ChatID)
	if c.Telegram.ChatID == "" {
		if value, ok := os.LookupEnv("RECFLOW_CHAT_ID"); ok {
			c.Telegram.ChatID = strings.TrimSpace(value)
		}
	}
	c.Telegram.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.Telegram.APIBaseURL), "/")
	if c.Telegram.APIBaseURL == "" {
		c.Telegram.APIBaseURL = defaultTelegramBaseURL
	}
}

func (c *Config) normalizeDiscovery() {
	exts := make([]string, 0, len(c.Discovery.Extensions))
	seen := make(map[string]struct{}, len(c.Discovery.Extensions))
	for _, ext := range c.Discovery.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultExtensions...)
	}
	c.Discovery.Extensions = exts
}

func (c *Config) normalizeConversation() {
	tags := make([]TagOption, 0, len(c.Conversation.Tags))
	for _, tag := range c.Conversation.Tags {
		raw := strings.TrimSpace(tag.Name)
		if raw == "" {
			continue
		}
		label := strings.TrimSpace(tag.Label)
		if label == "" {
			label = raw
		}
		// An empty name is kept so Validate can report the label.
		tags = append(tags, TagOption{Name: TagName(raw), Label: label})
	}
	c.Conversation.Tags = tags

	roster := make([]string, 0, len(c.Conversation.Participants))
	for _, handle := range c.Conversation.Participants {
		handle = strings.TrimSpace(handle)
		if handle == "" {
			continue
		}
		if !strings.HasPrefix(handle, "@") {
			handle = "@" + handle
		}
		roster = append(roster, strings.ToLower(handle))
	}
	c.Conversation.Participants = roster

	c.Conversation.FallbackTag = TagName(c.Conversation.FallbackTag)
	if c.Conversation.FallbackTag == "" {
		c.Conversation.FallbackTag = defaultFallbackTag
	}
	if c.Conversation.DebounceMS <= 0 {
		c.Conversation.DebounceMS = defaultDebounceMS
	}
}

func (c *Config) normalizeAI() {
	c.AI.WhisperXModel = strings.TrimSpace(c.AI.WhisperXModel)
	if c.AI.WhisperXModel == "" {
		c.AI.WhisperXModel = defaultWhisperXModel
	}
	c.AI.Language = strings.ToLower(strings.TrimSpace(c.AI.Language))
	if c.AI.TranscriptPreviewChars <= 0 {
		c.AI.TranscriptPreviewChars = defaultTranscriptPreviewChars
	}
	if strings.TrimSpace(c.AI.SummaryPrompt) == "" {
		c.AI.SummaryPrompt = DefaultSummaryPrompt
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("RECFLOW_LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("RECFLOW_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// TagName returns the stored form of a tag: case-folded, restricted to
// letters, digits and underscores.
func TagName(raw string) string {
	return textutil.WordChars(textutil.Fold(raw))
}
