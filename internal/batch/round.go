package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"cuebatch/internal/corpus"
	"cuebatch/internal/fileutil"
	"cuebatch/internal/logging"
	"cuebatch/internal/report"
	"cuebatch/internal/services"
	"cuebatch/internal/subtitles"
)

const (
	stageSize       = "size_check"
	stageTranscribe = "transcribe"
	stageTranslate  = "translate"
	stageWrite      = "write_artifacts"
)

// runRound dispatches every item concurrently and waits for all of them.
// Results keep the order of items.
func (r *Runner) runRound(ctx context.Context, index int, items []corpus.WorkItem, stats *report.Stats, sampler *logging.ProgressSampler) Round {
	roundCtx := services.WithRound(ctx, index)
	logger := logging.WithContext(roundCtx, r.logger)
	logger.Info("round started",
		logging.String(logging.FieldEventType, "round_start"),
		logging.Int("items", len(items)),
	)

	results := make([]ItemResult, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item corpus.WorkItem) {
			defer wg.Done()
			itemCtx := services.WithItemID(roundCtx, item.RelativeID)
			started := r.now()
			err := r.processItemSafe(itemCtx, item)
			res := ItemResult{
				Round:    index,
				Item:     item,
				Outcome:  services.OutcomeFor(err),
				Err:      err,
				Duration: r.now().Sub(started),
			}
			results[i] = res
			stats.Record(item.RelativeID, res.Outcome, err)
			r.logItem(itemCtx, res, stats.Snapshot(), sampler)
			if r.observer != nil {
				r.observer.ItemFinished(res, stats.Snapshot())
			}
		}(i, item)
	}
	wg.Wait()

	round := Round{Index: index, Results: results}
	var failed, skipped int
	for _, res := range results {
		switch {
		case res.Outcome == services.OutcomeSuccess:
		case res.Outcome.Skipped():
			skipped++
		default:
			failed++
		}
	}
	logger.Info("round finished",
		logging.String(logging.FieldEventType, "round_complete"),
		logging.Int("items", len(items)),
		logging.Int("failed", failed),
		logging.Int("skipped", skipped),
	)
	return round
}

// processItemSafe converts a panic in one item into a failed outcome so the
// round barrier still completes.
func (r *Runner) processItemSafe(ctx context.Context, item corpus.WorkItem) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.ErrorWithContext(logging.WithContext(ctx, r.logger), "item panicked", "item_panic",
				logging.Any("panic", rec),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "report this as a bug with the log file attached"),
			)
			err = services.Wrap(services.ErrTransient, "process", "panic", fmt.Sprint(rec), nil)
		}
	}()
	return r.processItem(ctx, item)
}

// processItem runs the per-asset pipeline: size gate, transcription,
// translation, artifact writes, ledger append. A ledger is only updated after
// both artifacts are on disk.
func (r *Runner) processItem(ctx context.Context, item corpus.WorkItem) error {
	if r.opts.MaxFileBytes > 0 && item.Size > r.opts.MaxFileBytes {
		return services.Wrap(services.ErrTooLarge, stageSize, "check size",
			fmt.Sprintf("%d bytes exceeds limit of %d bytes", item.Size, r.opts.MaxFileBytes), nil)
	}

	source, err := r.transcriber.Transcribe(services.WithStage(ctx, stageTranscribe), item.SourcePath)
	if err != nil {
		return err
	}
	if len(source) == 0 {
		return services.Wrap(services.ErrEmptyResult, stageTranscribe, "transcribe", "no segments returned", nil)
	}
	target, err := r.transcriber.Translate(services.WithStage(ctx, stageTranslate), item.SourcePath)
	if err != nil {
		return err
	}
	if len(target) == 0 {
		return services.Wrap(services.ErrEmptyResult, stageTranslate, "translate", "no segments returned", nil)
	}

	for i, segments := range [2][]subtitles.Segment{source, target} {
		path := item.ArtifactPaths[i]
		if err := fileutil.WriteFileAtomic(path, []byte(subtitles.Format(segments)), 0o644); err != nil {
			return services.Wrap(services.ErrTransient, stageWrite, "write subtitle", path, err)
		}
	}

	if _, res := r.ledger.Append(item.RelativeID); !res.OK() {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "ledger persist failed after item", "ledger_persist_failed",
			logging.String("path", res.Path),
			logging.Error(res.Err),
			logging.String(logging.FieldErrorHint, "check free space and permissions on the ledger directory"),
			logging.String(logging.FieldImpact, "entry is kept in memory and retried at the end of the round"),
		)
	}
	return nil
}

func (r *Runner) logItem(ctx context.Context, res ItemResult, snap report.Snapshot, sampler *logging.ProgressSampler) {
	logger := logging.WithContext(ctx, r.logger)
	attrs := []logging.Attr{
		logging.String(logging.FieldOutcome, string(res.Outcome)),
		logging.Duration("elapsed", res.Duration),
	}
	switch {
	case res.Outcome == services.OutcomeSuccess:
		logger.Info("item completed", logging.Args(append(attrs, logging.String(logging.FieldEventType, "item_complete"))...)...)
	case res.Outcome.Skipped():
		logger.Info("item skipped", logging.Args(append(attrs,
			logging.String(logging.FieldEventType, "item_skipped"),
			logging.String("reason", errorMessage(res.Err)),
		)...)...)
	default:
		logging.ErrorWithContext(logger, "item failed", "item_failed", append(attrs,
			logging.Error(res.Err),
			logging.String(logging.FieldErrorHint, "the item is retried on the next run"),
		)...)
	}

	if snap.Total == 0 {
		return
	}
	percent := float64(snap.Processed()) * 100 / float64(snap.Total)
	r.progressMu.Lock()
	emit := sampler.ShouldLog(percent, "items")
	r.progressMu.Unlock()
	if !emit {
		return
	}
	eta := report.ETA(snap.Elapsed(r.now()), snap.Processed(), snap.Remaining())
	r.logger.Info("progress",
		logging.String(logging.FieldEventType, "progress"),
		logging.Int("processed", snap.Processed()),
		logging.Int("total", snap.Total),
		logging.Float64("percent", percent),
		logging.Duration("eta", eta),
	)
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
