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

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file and directory locations.
type Paths struct {
	CorpusDir   string `toml:"corpus_dir"`
	LedgerPath  string `toml:"ledger_path"`
	ReportPath  string `toml:"report_path"`
	HistoryPath string `toml:"history_path"`
	LogDir      string `toml:"log_dir"`
}

// Transcription contains settings for the external transcription service and
// the artifacts derived from it.
type Transcription struct {
	APIKey                 string   `toml:"api_key"`
	BaseURL                string   `toml:"base_url"`
	Model                  string   `toml:"model"`
	SourceLanguage         string   `toml:"source_language"`
	TargetLanguage         string   `toml:"target_language"`
	RequestTimeoutSeconds  int      `toml:"request_timeout_seconds"`
	MaxFileBytes           int64    `toml:"max_file_bytes"`
	MediaExtensions        []string `toml:"media_extensions"`
	SourceSuffix           string   `toml:"source_suffix"`
	TargetSuffix           string   `toml:"target_suffix"`
	CostPerMinute          float64  `toml:"cost_per_minute"`
	AverageMinutesPerAsset float64  `toml:"average_minutes_per_asset"`
}

// Batch contains scheduler settings.
type Batch struct {
	RoundSize         int `toml:"round_size"`
	RoundDelayMillis  int `toml:"round_delay_ms"`
	StartDelayMillis  int `toml:"start_delay_ms"`
	MaxReportedErrors int `toml:"max_reported_errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for cuebatch.
//
// Configuration sections by subsystem:
//   - Paths: corpus root, ledger, report, history database, logs
//   - Transcription: service endpoint, languages, size ceiling, artifact naming
//   - Batch: round size and pacing
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Batch         Batch         `toml:"batch"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
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

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cuebatch.toml")
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

// EnsureDirectories creates the directories that hold the ledger, report,
// history database, and logs. The corpus directory is never created.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.LogDir,
		filepath.Dir(c.Paths.LedgerPath),
		filepath.Dir(c.Paths.HistoryPath),
	}
	if strings.TrimSpace(c.Paths.ReportPath) != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.ReportPath))
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

// RequestTimeout returns the per-call timeout for the transcription service.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Transcription.RequestTimeoutSeconds) * time.Second
}

// RoundDelay returns the pause between scheduler rounds.
func (c *Config) RoundDelay() time.Duration {
	return time.Duration(c.Batch.RoundDelayMillis) * time.Millisecond
}

// StartDelay returns the grace period before the first round is dispatched.
func (c *Config) StartDelay() time.Duration {
	return time.Duration(c.Batch.StartDelayMillis) * time.Millisecond
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
