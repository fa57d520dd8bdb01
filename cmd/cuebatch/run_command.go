package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cuebatch/internal/batch"
	"cuebatch/internal/config"
	"cuebatch/internal/corpus"
	"cuebatch/internal/history"
	"cuebatch/internal/ledger"
	"cuebatch/internal/logging"
	"cuebatch/internal/preflight"
	"cuebatch/internal/report"
	"cuebatch/internal/services/whisper"
)

const dryRunPreview = 10

type runOptions struct {
	limit     int
	dryRun    bool
	corpus    string
	roundSize int
	jsonOut   bool
	checkAPI  bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Transcribe pending items in the corpus",
		Long: `Scan the corpus, skip items recorded in the progress ledger, and transcribe
the rest in rounds. Interrupting a run is safe: completed items are saved and
the next run resumes where this one stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := applyRunOverrides(cfg, opts); err != nil {
				return err
			}
			return executeRun(cmd, cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.limit, "limit", "n", 0, "Process at most N pending items")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "List pending items and the cost estimate without calling the API")
	flags.StringVar(&opts.corpus, "corpus", "", "Corpus directory (overrides paths.corpus_dir)")
	flags.IntVar(&opts.roundSize, "round-size", 0, "Concurrent items per round (overrides batch.round_size)")
	flags.BoolVar(&opts.jsonOut, "json", false, "Print the run summary as JSON")
	flags.BoolVar(&opts.checkAPI, "check-api", false, "Probe the transcription API before starting")
	return cmd
}

func applyRunOverrides(cfg *config.Config, opts runOptions) error {
	if opts.limit < 0 {
		return fmt.Errorf("--limit must be zero or positive, got %d", opts.limit)
	}
	if opts.roundSize < 0 {
		return fmt.Errorf("--round-size must be positive, got %d", opts.roundSize)
	}
	if opts.roundSize > 0 {
		cfg.Batch.RoundSize = opts.roundSize
	}
	if dir := strings.TrimSpace(opts.corpus); dir != "" {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return fmt.Errorf("resolve corpus path: %w", err)
		}
		cfg.Paths.CorpusDir = expanded
	}
	return nil
}

func executeRun(cmd *cobra.Command, cfg *config.Config, opts runOptions) error {
	started := time.Now()
	logger, logPath, err := logging.NewFromConfig(cfg, started)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logging.CleanupOldLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, logPath)

	baseCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := preflight.RunAll(baseCtx, cfg, preflight.Options{SkipCredentials: opts.dryRun, Network: opts.checkAPI})
	if failed := preflight.Failed(results); len(failed) > 0 {
		colorize := isTerminal(cmd.ErrOrStderr())
		for _, r := range failed {
			fmt.Fprintln(cmd.ErrOrStderr(), renderStatusLine(r.Name, statusError, r.Detail, colorize))
		}
		return fmt.Errorf("preflight failed: %s", failed[0].Name)
	}

	if !opts.dryRun {
		lock, err := ledger.AcquireRunLock(cfg.Paths.LedgerPath)
		if err != nil {
			if errors.Is(err, ledger.ErrLocked) {
				return fmt.Errorf("another cuebatch run is in progress (lock %s)", ledger.LockPath(cfg.Paths.LedgerPath))
			}
			return err
		}
		defer func() { _ = lock.Release() }()
	}

	l, err := ledger.Load(cfg.Paths.LedgerPath, logger)
	if err != nil {
		return err
	}
	scanner := newScanner(cfg)

	var transcriber batch.Transcriber
	if !opts.dryRun {
		transcriber = newTranscriber(cfg, logger)
	}

	progress := newRunProgress(cmd, cfg, opts.jsonOut)
	runner, err := batch.NewRunner(scanner, l, transcriber, batch.Options{
		RoundSize:         cfg.Batch.RoundSize,
		RoundDelay:        cfg.RoundDelay(),
		StartDelay:        cfg.StartDelay(),
		MaxFileBytes:      cfg.Transcription.MaxFileBytes,
		Limit:             opts.limit,
		DryRun:            opts.dryRun,
		MaxReportedErrors: cfg.Batch.MaxReportedErrors,
	}, logger, batch.WithObserver(progress))
	if err != nil {
		return err
	}

	logger.Info("run starting",
		logging.String(logging.FieldRunID, runner.RunID()),
		logging.String("corpus", cfg.Paths.CorpusDir),
		logging.String("ledger", cfg.Paths.LedgerPath),
		logging.Int("completed_count", l.Len()),
		logging.Bool("dry_run", opts.dryRun),
	)

	result, err := runner.Run(baseCtx)
	progress.finish()
	if err != nil {
		return err
	}

	if opts.dryRun {
		if result.Interrupted {
			fmt.Fprintln(cmd.ErrOrStderr(), "Interrupted: nothing was changed")
			return context.Canceled
		}
		return printDryRun(cmd, cfg, result.Plan, opts.jsonOut)
	}

	if err := report.Write(cfg.Paths.ReportPath, result.Summary); err != nil {
		logging.WarnWithContext(logger, "report write failed", "report_write_failed",
			logging.String("path", cfg.Paths.ReportPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the report directory"),
			logging.String(logging.FieldImpact, "summary is printed but not saved"),
		)
	}
	// History is recorded on a fresh context so an interrupted run is still kept.
	if err := recordHistory(context.WithoutCancel(baseCtx), cfg, result, started); err != nil {
		logging.WarnWithContext(logger, "history record failed", "history_record_failed",
			logging.String("path", cfg.Paths.HistoryPath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "this run will not appear in 'cuebatch history'"),
		)
	}

	if opts.jsonOut {
		if err := writeJSON(cmd, result.Summary); err != nil {
			return err
		}
	} else {
		printRunSummary(cmd, cfg, result, logPath)
	}

	if result.Interrupted {
		fmt.Fprintln(cmd.ErrOrStderr(), "Interrupted: progress was saved, re-run to resume")
		return context.Canceled
	}
	return nil
}

func newScanner(cfg *config.Config) *corpus.Scanner {
	return corpus.NewScanner(cfg.Paths.CorpusDir, corpus.Options{
		Extensions:   cfg.Transcription.MediaExtensions,
		SourceSuffix: cfg.Transcription.SourceSuffix,
		TargetSuffix: cfg.Transcription.TargetSuffix,
	})
}

func newTranscriber(cfg *config.Config, logger *slog.Logger) *whisper.Client {
	return whisper.NewClient(whisper.Config{
		APIKey:         cfg.Transcription.APIKey,
		BaseURL:        cfg.Transcription.BaseURL,
		Model:          cfg.Transcription.Model,
		SourceLanguage: cfg.Transcription.SourceLanguage,
		MaxFileBytes:   cfg.Transcription.MaxFileBytes,
		Timeout:        cfg.RequestTimeout(),
	}, whisper.WithLogger(logger))
}

func recordHistory(ctx context.Context, cfg *config.Config, result batch.Result, started time.Time) error {
	store, err := history.Open(ctx, cfg.Paths.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	s := result.Summary
	run := history.Run{
		RunID:           result.RunID,
		StartedAt:       started,
		FinishedAt:      s.Timestamp,
		CorpusDir:       cfg.Paths.CorpusDir,
		Total:           s.Total,
		Completed:       s.Completed,
		Failed:          s.Failed,
		Skipped:         s.Skipped,
		SuccessRate:     s.SuccessRate,
		DurationSeconds: s.DurationSeconds,
		Evicted:         s.Evicted,
		Backfilled:      s.Backfilled,
		Interrupted:     s.Interrupted,
		CorpusComplete:  s.CorpusComplete,
	}
	var items []history.ItemRecord
	for _, round := range result.Rounds {
		for _, res := range round.Results {
			record := history.ItemRecord{
				ItemID:   res.Item.RelativeID,
				Round:    res.Round,
				Outcome:  string(res.Outcome),
				Duration: res.Duration,
			}
			if res.Err != nil {
				record.Message = res.Err.Error()
			}
			items = append(items, record)
		}
	}
	return store.RecordRun(ctx, run, items)
}
