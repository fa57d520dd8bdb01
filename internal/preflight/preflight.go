package preflight

import (
	"context"
	"path/filepath"

	"cuebatch/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options selects optional checks.
type Options struct {
	// Network probes the transcription endpoint with the configured key.
	Network bool
	// SkipCredentials omits the API key check, for dry runs.
	SkipCredentials bool
}

// RunAll executes the checks that apply to cfg. State directories are
// expected to exist already (see config.EnsureDirectories).
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Corpus directory", cfg.Paths.CorpusDir),
		CheckDirectoryAccess("Ledger directory", filepath.Dir(cfg.Paths.LedgerPath)),
	}
	if cfg.Paths.ReportPath != "" {
		results = append(results, CheckDirectoryAccess("Report directory", filepath.Dir(cfg.Paths.ReportPath)))
	}
	if cfg.Paths.HistoryPath != "" {
		results = append(results, CheckDirectoryAccess("History directory", filepath.Dir(cfg.Paths.HistoryPath)))
	}

	if !opts.SkipCredentials {
		results = append(results, CheckCredentials(cfg))
		if opts.Network && cfg.Transcription.APIKey != "" {
			results = append(results, CheckEndpoint(ctx, cfg.Transcription.BaseURL, cfg.Transcription.APIKey))
		}
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
