package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"recflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Telegram.BotToken = "test-token"
	cfgVal.Telegram.ChatID = "100"
	cfgVal.Paths.SourceDir = filepath.Join(base, "recordings")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.StateFile = filepath.Join(base, "state", "state.json")
	cfgVal.Paths.HistoryDB = filepath.Join(base, "state", "history.db")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Discovery.StabilitySeconds = 0
	cfgVal.Discovery.MinAgeSeconds = 0
	cfgVal.Discovery.Watch = false
	cfgVal.Conversation.Participants = []string{"@alice", "@bob"}
	cfgVal.Delivery.RetryDelaySeconds = 60

	for _, dir := range []string{cfgVal.Paths.SourceDir, cfgVal.Paths.WorkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAI enables transcription and summaries with the given LLM key.
func WithAI(apiKey string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.AI.Enabled = true
		b.cfg.LLM.APIKey = apiKey
	}
}

// WithStability sets the discovery stability window.
func WithStability(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Discovery.StabilitySeconds = seconds
	}
}

// WithChatID overrides the configured destination; "" leaves it to be learned.
func WithChatID(id string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Telegram.ChatID = id
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default recflow external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "uvx"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.SourceDir)
}
