package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"recflow/internal/config"
)

func TestLoadDefaultConfigUsesEnvTokenAndExpandsPaths(t *testing.T) {
	t.Setenv("RECFLOW_BOT_TOKEN", "123:abc")
	t.Setenv("RECFLOW_CHAT_ID", "42")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if cfg.Telegram.BotToken != "123:abc" {
		t.Fatalf("expected bot token from env, got %q", cfg.Telegram.BotToken)
	}
	if cfg.Telegram.ChatID != "42" {
		t.Fatalf("expected chat id from env, got %q", cfg.Telegram.ChatID)
	}
	wantSource := filepath.Join(tempHome, "recordings")
	if cfg.Paths.SourceDir != wantSource {
		t.Fatalf("unexpected source dir: got %q want %q", cfg.Paths.SourceDir, wantSource)
	}
	wantState := filepath.Join(tempHome, ".local", "share", "recflow", "state.json")
	if cfg.Paths.StateFile != wantState {
		t.Fatalf("unexpected state file: got %q want %q", cfg.Paths.StateFile, wantState)
	}
	if cfg.AI.Enabled {
		t.Fatal("expected AI disabled by default")
	}
	if cfg.Conversation.FallbackTag != "untagged" {
		t.Fatalf("unexpected fallback tag %q", cfg.Conversation.FallbackTag)
	}
	if cfg.TargetBytes() != 49*1024*1024 {
		t.Fatalf("unexpected target bytes %d", cfg.TargetBytes())
	}
}

func TestLoadWithoutTokenFails(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("RECFLOW_BOT_TOKEN", "")
	os.Unsetenv("RECFLOW_BOT_TOKEN")

	_, _, _, err := config.Load("")
	if err == nil {
		t.Fatal("expected error without bot token")
	}
	if !strings.Contains(err.Error(), "telegram.bot_token") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSampleConfigLoads(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("RECFLOW_BOT_TOKEN", "123:abc")

	path := filepath.Join(tempHome, "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected sample to be used, got %q exists=%v", resolved, exists)
	}
	if len(cfg.Conversation.Tags) != 5 {
		t.Fatalf("expected 5 sample tags, got %d", len(cfg.Conversation.Tags))
	}
	if cfg.Conversation.Synonyms["собес"] != "собеседование" {
		t.Fatalf("expected synonym from sample, got %v", cfg.Conversation.Synonyms)
	}
}

func TestLoadNormalizesConversationAndExtensions(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("RECFLOW_BOT_TOKEN", "123:abc")

	path := filepath.Join(tempHome, "config.toml")
	content := `
[discovery]
extensions = ["MP4", ".mkv", "mp4", ""]

[conversation]
participants = ["Alice_1", "@BOB_two"]

[[conversation.tags]]
name = " mock "
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := strings.Join(cfg.Discovery.Extensions, ","); got != ".mp4,.mkv" {
		t.Fatalf("unexpected extensions %q", got)
	}
	if got := strings.Join(cfg.Conversation.Participants, ","); got != "@alice_1,@bob_two" {
		t.Fatalf("unexpected participants %q", got)
	}
	if len(cfg.Conversation.Tags) != 1 || cfg.Conversation.Tags[0].Name != "mock" || cfg.Conversation.Tags[0].Label != "mock" {
		t.Fatalf("unexpected tags %+v", cfg.Conversation.Tags)
	}
}

func TestLoadStoresTagNamesInTextForm(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("RECFLOW_BOT_TOKEN", "123:abc")

	path := filepath.Join(tempHome, "config.toml")
	content := `
[conversation]
fallback_tag = "No-Tags"

[[conversation.tags]]
name = "System-Design"
label = "SD"

[[conversation.tags]]
name = "Мок"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []config.TagOption{{Name: "system_design", Label: "SD"}, {Name: "мок", Label: "Мок"}}
	if !slices.Equal(cfg.Conversation.Tags, want) {
		t.Fatalf("tags = %+v, want %+v", cfg.Conversation.Tags, want)
	}
	if cfg.Conversation.FallbackTag != "no_tags" {
		t.Fatalf("fallback tag = %q", cfg.Conversation.FallbackTag)
	}
}

func TestLoadRejectsTagsThatNormalizeAway(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("RECFLOW_BOT_TOKEN", "123:abc")

	cases := map[string]string{
		"no word characters": "[[conversation.tags]]\nname = \"!!!\"\n",
		"duplicate":          "[[conversation.tags]]\nname = \"Mock\"\n[[conversation.tags]]\nname = \"mock\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, _, _, err := config.Load(path); err == nil || !strings.Contains(err.Error(), "conversation.tags") {
				t.Fatalf("expected conversation.tags error, got %v", err)
			}
		})
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"shrink", func(c *config.Config) { c.Delivery.ShrinkFactor = 1.2 }, "delivery.shrink_factor"},
		{"hour", func(c *config.Config) { c.Reminders.NightEndHour = 24 }, "night_end_hour"},
		{"interval", func(c *config.Config) { c.Reminders.MaxInterval = 10 }, "reminders.max_interval"},
		{"timezone", func(c *config.Config) { c.Reminders.Timezone = "Mars/Base" }, "reminders.timezone"},
		{"handle", func(c *config.Config) { c.Conversation.Participants = []string{"@a"} }, "conversation.participants"},
		{"ai", func(c *config.Config) { c.AI.Enabled = true; c.LLM.APIKey = "" }, "llm.api_key"},
		{"tags", func(c *config.Config) { c.Conversation.Tags = nil }, "conversation.tags"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Telegram.BotToken = "123:abc"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StateFile = filepath.Join(base, "state", "state.json")
	cfg.Paths.HistoryDB = filepath.Join(base, "db", "history.db")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{"work", "logs", "state", "db"} {
		if info, err := os.Stat(filepath.Join(base, dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s to exist: %v", dir, err)
		}
	}
}
