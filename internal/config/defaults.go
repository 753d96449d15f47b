package config

const (
	defaultStateDir             = "~/.local/share/podscribe"
	defaultNotesDir             = "~/podscribe/notes"
	defaultTranscriptDir        = "~/.local/share/podscribe/transcripts"
	defaultLogDir               = "~/.local/share/podscribe/logs"
	defaultFeishuBaseURL        = "https://open.feishu.cn/open-apis"
	defaultFeishuPageSize       = 100
	defaultTingwuRegion         = "cn-shanghai"
	defaultTingwuPollInterval   = 10
	defaultTingwuPollTimeout    = 1200
	defaultTingwuRecoveryFetch  = 30
	defaultLLMBaseURL           = "https://api.openai.com/v1/chat/completions"
	defaultLLMModel             = "gpt-4o"
	defaultLLMTimeoutSeconds    = 120
	defaultNotesSegmentSeconds  = 720
	defaultNotesMinSegments     = 5
	defaultNotesMaxSampledLines = 500
	defaultNotesKeyInsights     = 6
	defaultCheckInterval        = 60
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:      defaultStateDir,
			NotesDir:      defaultNotesDir,
			TranscriptDir: defaultTranscriptDir,
			LogDir:        defaultLogDir,
		},
		Feishu: Feishu{
			BaseURL:  defaultFeishuBaseURL,
			PageSize: defaultFeishuPageSize,
		},
		Tingwu: Tingwu{
			RegionID:             defaultTingwuRegion,
			PollInterval:         defaultTingwuPollInterval,
			PollTimeout:          defaultTingwuPollTimeout,
			RecoveryFetchTimeout: defaultTingwuRecoveryFetch,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Notes: Notes{
			SegmentSeconds:  defaultNotesSegmentSeconds,
			MinSegments:     defaultNotesMinSegments,
			MaxSampledLines: defaultNotesMaxSampledLines,
			KeyInsights:     defaultNotesKeyInsights,
		},
		Workflow: Workflow{
			CheckInterval: defaultCheckInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
