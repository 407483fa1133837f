package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var participantHandle = regexp.MustCompile(`^@\w{3,32}$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTelegram(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateConversation(); err != nil {
		return err
	}
	if err := c.validateReminders(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if err := c.validateAI(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.SourceDir) == "" {
		return errors.New("paths.source_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateFile) == "" {
		return errors.New("paths.state_file must be set")
	}
	return nil
}

func (c *Config) validateTelegram() error {
	if c.Telegram.BotToken == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/recflow/config.toml"
		}
		return fmt.Errorf("telegram.bot_token is required. Set RECFLOW_BOT_TOKEN env var or edit %s (create with 'recflow config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateTimings() error {
	return ensurePositiveMap(map[string]int{
		"telegram.poll_timeout":          c.Telegram.PollTimeout,
		"telegram.request_timeout":       c.Telegram.RequestTimeout,
		"telegram.upload_timeout":        c.Telegram.UploadTimeout,
		"discovery.scan_interval":        c.Discovery.ScanInterval,
		"preview.clip_seconds":           c.Preview.ClipSeconds,
		"workflow.error_retry_interval":  c.Workflow.ErrorRetryInterval,
		"notifications.request_timeout":  c.Notifications.RequestTimeout,
		"delivery.retry_delay_seconds":   c.Delivery.RetryDelaySeconds,
		"delivery.min_segment_seconds":   c.Delivery.MinSegmentSeconds,
		"delivery.max_attempts":          c.Delivery.MaxAttempts,
		"delivery.target_mb":             c.Delivery.TargetMB,
		"reminders.base_interval":        c.Reminders.BaseInterval,
		"reminders.max_interval":         c.Reminders.MaxInterval,
		"conversation.debounce_ms":       c.Conversation.DebounceMS,
		"ai.transcript_preview_chars":    c.AI.TranscriptPreviewChars,
		"discovery.extensions (entries)": len(c.Discovery.Extensions),
	})
}

func (c *Config) validateConversation() error {
	if len(c.Conversation.Tags) == 0 {
		return errors.New("conversation.tags must include at least one tag")
	}
	seen := make(map[string]string, len(c.Conversation.Tags))
	for _, tag := range c.Conversation.Tags {
		if tag.Name == "" {
			return fmt.Errorf("conversation.tags: %q has no letters or digits", tag.Label)
		}
		if prev, ok := seen[tag.Name]; ok {
			return fmt.Errorf("conversation.tags: %q and %q both normalize to %q", prev, tag.Label, tag.Name)
		}
		seen[tag.Name] = tag.Label
	}
	for _, handle := range c.Conversation.Participants {
		if !participantHandle.MatchString(handle) {
			return fmt.Errorf("conversation.participants: %q is not a valid @handle (3-32 word characters)", handle)
		}
	}
	if c.Discovery.StabilitySeconds < 0 {
		return errors.New("discovery.stability_seconds must be >= 0")
	}
	if c.Discovery.MinAgeSeconds < 0 {
		return errors.New("discovery.min_age_seconds must be >= 0")
	}
	if c.Preview.StartFraction < 0 || c.Preview.StartFraction >= 1 {
		return errors.New("preview.start_fraction must be in [0, 1)")
	}
	return nil
}

func (c *Config) validateReminders() error {
	if c.Reminders.MaxInterval < c.Reminders.BaseInterval {
		return errors.New("reminders.max_interval must be >= reminders.base_interval")
	}
	if _, err := time.LoadLocation(c.Reminders.Timezone); err != nil {
		return fmt.Errorf("reminders.timezone: %w", err)
	}
	for key, hour := range map[string]int{
		"reminders.night_start_hour": c.Reminders.NightStartHour,
		"reminders.night_end_hour":   c.Reminders.NightEndHour,
	} {
		if hour < 0 || hour > 23 {
			return fmt.Errorf("%s must be between 0 and 23", key)
		}
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if c.Delivery.ShrinkFactor <= 0 || c.Delivery.ShrinkFactor >= 1 {
		return errors.New("delivery.shrink_factor must be between 0 and 1")
	}
	if c.Delivery.SizeTolerance < 0 || c.Delivery.SizeTolerance > 1 {
		return errors.New("delivery.size_tolerance must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateAI() error {
	if c.AI.Enabled && c.LLM.APIKey == "" {
		return errors.New("llm.api_key must be set when ai.enabled is true (or set OPENROUTER_API_KEY)")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
