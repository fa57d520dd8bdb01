package config

import (
	"fmt"
	"os"
	"strings"

	"cuebatch/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscription()
	c.normalizeBatch()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("CUEBATCH_CORPUS_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.CorpusDir = strings.TrimSpace(value)
	}
	var err error
	if c.Paths.CorpusDir, err = expandPath(c.Paths.CorpusDir); err != nil {
		return fmt.Errorf("paths.corpus_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LedgerPath) == "" {
		c.Paths.LedgerPath = defaultLedgerPath
	}
	if c.Paths.LedgerPath, err = expandPath(c.Paths.LedgerPath); err != nil {
		return fmt.Errorf("paths.ledger_path: %w", err)
	}
	// An empty report path disables the report file.
	if c.Paths.ReportPath, err = expandPath(strings.TrimSpace(c.Paths.ReportPath)); err != nil {
		return fmt.Errorf("paths.report_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.HistoryPath) == "" {
		c.Paths.HistoryPath = defaultHistoryPath
	}
	if c.Paths.HistoryPath, err = expandPath(c.Paths.HistoryPath); err != nil {
		return fmt.Errorf("paths.history_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	t := &c.Transcription
	t.APIKey = strings.TrimSpace(t.APIKey)
	if t.APIKey == "" {
		for _, name := range []string{"CUEBATCH_API_KEY", "OPENAI_API_KEY"} {
			if value := strings.TrimSpace(os.Getenv(name)); value != "" {
				t.APIKey = value
				break
			}
		}
	}
	t.BaseURL = strings.TrimRight(strings.TrimSpace(t.BaseURL), "/")
	if t.BaseURL == "" {
		t.BaseURL = defaultBaseURL
	}
	t.Model = strings.TrimSpace(t.Model)
	if t.Model == "" {
		t.Model = defaultModel
	}
	if iso2 := language.ToISO2(t.SourceLanguage); iso2 != "" {
		t.SourceLanguage = iso2
	}
	if iso2 := language.ToISO2(t.TargetLanguage); iso2 != "" {
		t.TargetLanguage = iso2
	}
	if t.RequestTimeoutSeconds <= 0 {
		t.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if t.MaxFileBytes <= 0 {
		t.MaxFileBytes = defaultMaxFileBytes
	}

	exts := make([]string, 0, len(t.MediaExtensions))
	seen := make(map[string]struct{}, len(t.MediaExtensions))
	for _, ext := range t.MediaExtensions {
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
		exts = append(exts, defaultMediaExtensions...)
	}
	t.MediaExtensions = exts

	t.SourceSuffix = strings.TrimSpace(t.SourceSuffix)
	if t.SourceSuffix == "" {
		t.SourceSuffix = language.SubtitleSuffix(t.SourceLanguage)
	}
	t.TargetSuffix = strings.TrimSpace(t.TargetSuffix)
	if t.TargetSuffix == "" {
		t.TargetSuffix = language.SubtitleSuffix(t.TargetLanguage)
	}
	if t.CostPerMinute < 0 {
		t.CostPerMinute = 0
	}
	if t.AverageMinutesPerAsset <= 0 {
		t.AverageMinutesPerAsset = defaultAverageMinutesPerAsset
	}
}

func (c *Config) normalizeBatch() {
	if c.Batch.RoundSize <= 0 {
		c.Batch.RoundSize = defaultRoundSize
	}
	if c.Batch.RoundDelayMillis < 0 {
		c.Batch.RoundDelayMillis = 0
	}
	if c.Batch.StartDelayMillis < 0 {
		c.Batch.StartDelayMillis = 0
	}
	if c.Batch.MaxReportedErrors <= 0 {
		c.Batch.MaxReportedErrors = defaultMaxReportedErrors
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
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
