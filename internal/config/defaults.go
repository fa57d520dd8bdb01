package config

const (
	defaultConfigPath             = "~/.config/cuebatch/config.toml"
	defaultCorpusDir              = "~/media/videos"
	defaultLedgerPath             = "~/.local/share/cuebatch/transcription-progress.json"
	defaultReportPath             = "~/.local/share/cuebatch/transcription-report.json"
	defaultHistoryPath            = "~/.local/share/cuebatch/history.db"
	defaultLogDir                 = "~/.local/share/cuebatch/logs"
	defaultLogRetentionDays       = 30
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultBaseURL                = "https://api.openai.com/v1"
	defaultModel                  = "whisper-1"
	defaultSourceLanguage         = "es"
	defaultTargetLanguage         = "en"
	defaultRequestTimeoutSeconds  = 120
	defaultMaxFileBytes           = 24 * 1024 * 1024
	defaultSourceSuffix           = ".es.srt"
	defaultTargetSuffix           = ".en.srt"
	defaultCostPerMinute          = 0.006
	defaultAverageMinutesPerAsset = 0.5
	defaultRoundSize              = 10
	defaultRoundDelayMillis       = 3000
	defaultMaxReportedErrors      = 20
)

var defaultMediaExtensions = []string{".mp4", ".mov"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CorpusDir:   defaultCorpusDir,
			LedgerPath:  defaultLedgerPath,
			ReportPath:  defaultReportPath,
			HistoryPath: defaultHistoryPath,
			LogDir:      defaultLogDir,
		},
		Transcription: Transcription{
			BaseURL:                defaultBaseURL,
			Model:                  defaultModel,
			SourceLanguage:         defaultSourceLanguage,
			TargetLanguage:         defaultTargetLanguage,
			RequestTimeoutSeconds:  defaultRequestTimeoutSeconds,
			MaxFileBytes:           defaultMaxFileBytes,
			MediaExtensions:        append([]string(nil), defaultMediaExtensions...),
			SourceSuffix:           defaultSourceSuffix,
			TargetSuffix:           defaultTargetSuffix,
			CostPerMinute:          defaultCostPerMinute,
			AverageMinutesPerAsset: defaultAverageMinutesPerAsset,
		},
		Batch: Batch{
			RoundSize:         defaultRoundSize,
			RoundDelayMillis:  defaultRoundDelayMillis,
			MaxReportedErrors: defaultMaxReportedErrors,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
