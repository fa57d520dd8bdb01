package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// ValidateCredentials reports whether the transcription service can be
// called. Commands that never reach the network skip this check.
func (c *Config) ValidateCredentials() error {
	if strings.TrimSpace(c.Transcription.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("transcription.api_key is required. Set OPENAI_API_KEY env var or edit %s (create with 'cuebatch config init')", defaultPath)
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.CorpusDir) == "" {
		return errors.New("paths.corpus_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LedgerPath) == "" {
		return errors.New("paths.ledger_path must be set")
	}
	if c.Paths.LedgerPath == c.Paths.ReportPath {
		return errors.New("paths.report_path must differ from paths.ledger_path")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	t := c.Transcription
	if !strings.HasPrefix(t.BaseURL, "http://") && !strings.HasPrefix(t.BaseURL, "https://") {
		return fmt.Errorf("transcription.base_url %q must be an http(s) URL", t.BaseURL)
	}
	if t.SourceSuffix == "" {
		return errors.New("transcription.source_suffix must be set")
	}
	if t.TargetSuffix == "" {
		return errors.New("transcription.target_suffix must be set")
	}
	if t.SourceSuffix == t.TargetSuffix {
		return errors.New("transcription.source_suffix and transcription.target_suffix must differ")
	}
	for _, ext := range t.MediaExtensions {
		if strings.HasSuffix(t.SourceSuffix, ext) || strings.HasSuffix(t.TargetSuffix, ext) {
			return fmt.Errorf("transcription subtitle suffixes must not end in media extension %q", ext)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
}
