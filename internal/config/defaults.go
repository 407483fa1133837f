package config

const (
	defaultSourceDir              = "~/recordings"
	defaultWorkDir                = "~/.local/share/recflow/work"
	defaultStateFile              = "~/.local/share/recflow/state.json"
	defaultHistoryDB              = "~/.local/share/recflow/history.db"
	defaultLogDir                 = "~/.local/share/recflow/logs"
	defaultTelegramBaseURL        = "https://api.telegram.org"
	defaultPollTimeout            = 20
	defaultRequestTimeout         = 30
	defaultUploadTimeout          = 600
	defaultStabilitySeconds       = 30
	defaultMinAgeSeconds          = 60
	defaultScanInterval           = 30
	defaultPreviewClipSeconds     = 20
	defaultPreviewStartFraction   = 0.1
	defaultFallbackTag            = "untagged"
	defaultDebounceMS             = 1200
	defaultReminderBase           = 15 * 60
	defaultReminderMax            = 6 * 60 * 60
	defaultTimezone               = "Europe/Moscow"
	defaultNightStartHour         = 23
	defaultNightEndHour           = 9
	defaultTargetMB               = 49
	defaultMinSegmentSeconds      = 90
	defaultDeliveryMaxAttempts    = 6
	defaultShrinkFactor           = 0.85
	defaultSizeTolerance          = 0.08
	defaultRetryDelaySeconds      = 60
	defaultDeliveryMIME           = "video/mp4"
	defaultWhisperXModel          = "large-v3"
	defaultLanguage               = "ru"
	defaultTranscriptPreviewChars = 500
	defaultLLMBaseURL             = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel               = "google/gemini-3-flash-preview"
	defaultLLMReferer             = "https://github.com/recflow/recflow"
	defaultLLMTitle               = "recflow summaries"
	defaultLLMTimeoutSeconds      = 120
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultErrorRetryInterval     = 10
)

// DefaultSummaryPrompt is the system prompt used when none is configured.
const DefaultSummaryPrompt = `You summarize transcripts of recorded calls.
Write in the language of the transcript. Produce a short overview (2-3
sentences), then bullet points for decisions, action items with owners when
named, and open questions. Omit empty sections.`

var defaultExtensions = []string{".mp4", ".mkv", ".mov", ".webm", ".avi", ".m4v"}

var defaultTags = []TagOption{
	{Name: "мок", Label: "Мок"},
	{Name: "собеседование", Label: "Собеседование"},
	{Name: "резюме", Label: "Резюме"},
	{Name: "созвон", Label: "Созвон"},
	{Name: "лекция", Label: "Лекция"},
}

var defaultSynonyms = map[string]string{
	"mock":      "мок",
	"собес":     "собеседование",
	"interview": "собеседование",
	"cv":        "резюме",
	"resume":    "резюме",
	"call":      "созвон",
	"lecture":   "лекция",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	synonyms := make(map[string]string, len(defaultSynonyms))
	for k, v := range defaultSynonyms {
		synonyms[k] = v
	}
	return Config{
		Paths: Paths{
			SourceDir: defaultSourceDir,
			WorkDir:   defaultWorkDir,
			StateFile: defaultStateFile,
			HistoryDB: defaultHistoryDB,
			LogDir:    defaultLogDir,
		},
		Telegram: Telegram{
			APIBaseURL:     defaultTelegramBaseURL,
			PollTimeout:    defaultPollTimeout,
			RequestTimeout: defaultRequestTimeout,
			UploadTimeout:  defaultUploadTimeout,
		},
		Discovery: Discovery{
			Extensions:       append([]string(nil), defaultExtensions...),
			StabilitySeconds: defaultStabilitySeconds,
			MinAgeSeconds:    defaultMinAgeSeconds,
			ScanInterval:     defaultScanInterval,
			Watch:            true,
		},
		Preview: Preview{
			ClipSeconds:   defaultPreviewClipSeconds,
			StartFraction: defaultPreviewStartFraction,
		},
		Conversation: Conversation{
			Tags:        append([]TagOption(nil), defaultTags...),
			Synonyms:    synonyms,
			FallbackTag: defaultFallbackTag,
			DebounceMS:  defaultDebounceMS,
		},
		Reminders: Reminders{
			BaseInterval:   defaultReminderBase,
			MaxInterval:    defaultReminderMax,
			Timezone:       defaultTimezone,
			NightStartHour: defaultNightStartHour,
			NightEndHour:   defaultNightEndHour,
		},
		Delivery: Delivery{
			TargetMB:           defaultTargetMB,
			MinSegmentSeconds:  defaultMinSegmentSeconds,
			MaxAttempts:        defaultDeliveryMaxAttempts,
			ShrinkFactor:       defaultShrinkFactor,
			SizeTolerance:      defaultSizeTolerance,
			RetryDelaySeconds:  defaultRetryDelaySeconds,
			SendAsDocumentMIME: defaultDeliveryMIME,
		},
		AI: AI{
			WhisperXModel:          defaultWhisperXModel,
			Language:               defaultLanguage,
			SendTranscript:         true,
			TranscriptPreviewChars: defaultTranscriptPreviewChars,
			SummaryPrompt:          DefaultSummaryPrompt,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Completions:    false,
			Errors:         true,
		},
		Workflow: Workflow{
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: 14,
			MaxFileMB:     50,
		},
	}
}
