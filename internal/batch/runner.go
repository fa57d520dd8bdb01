package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"cuebatch/internal/corpus"
	"cuebatch/internal/ledger"
	"cuebatch/internal/logging"
	"cuebatch/internal/report"
	"cuebatch/internal/services"
)

const defaultRoundSize = 10

// Runner drives one batch run. A Runner is single use.
type Runner struct {
	scanner     *corpus.Scanner
	ledger      *ledger.Ledger
	transcriber Transcriber
	opts        Options
	logger      *slog.Logger
	observer    Observer

	runID string
	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	progressMu sync.Mutex

	mu          sync.Mutex
	state       State
	transitions []State
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithObserver registers progress callbacks.
func WithObserver(observer Observer) RunnerOption {
	return func(r *Runner) { r.observer = observer }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) RunnerOption {
	return func(r *Runner) {
		if id != "" {
			r.runID = id
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner wires a scheduler around a scanner, a loaded ledger, and a transcriber.
func NewRunner(scanner *corpus.Scanner, l *ledger.Ledger, transcriber Transcriber, opts Options, logger *slog.Logger, options ...RunnerOption) (*Runner, error) {
	if scanner == nil || l == nil {
		return nil, errors.New("batch runner requires scanner and ledger")
	}
	if transcriber == nil && !opts.DryRun {
		return nil, errors.New("batch runner requires a transcriber")
	}
	if opts.RoundSize <= 0 {
		opts.RoundSize = defaultRoundSize
	}
	if opts.RoundDelay < 0 {
		opts.RoundDelay = 0
	}
	if opts.StartDelay < 0 {
		opts.StartDelay = 0
	}
	r := &Runner{
		scanner:     scanner,
		ledger:      l,
		transcriber: transcriber,
		opts:        opts,
		logger:      logging.NewComponentLogger(logger, "scheduler"),
		runID:       uuid.NewString(),
		now:         time.Now,
		sleep:       sleepContext,
		state:       StateIdle,
		transitions: []State{StateIdle},
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// RunID returns the identifier attached to logs, the report, and history.
func (r *Runner) RunID() string { return r.runID }

// State returns the current lifecycle phase.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) transition(next State) {
	r.mu.Lock()
	prev := r.state
	r.state = next
	if len(r.transitions) == 0 || r.transitions[len(r.transitions)-1] != next {
		r.transitions = append(r.transitions, next)
	}
	r.mu.Unlock()
	r.logger.Debug("scheduler state changed",
		logging.String("from", string(prev)),
		logging.String("to", string(next)),
	)
}

func (r *Runner) transitionTrail() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.transitions...)
}

// Run scans, filters, and processes the corpus. Only fatal conditions return
// an error; per-item failures are recorded in the summary. When ctx is
// cancelled between rounds the result is marked interrupted.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	ctx = services.WithRunID(ctx, r.runID)
	logger := logging.WithContext(ctx, r.logger)
	result := Result{RunID: r.runID}

	r.transition(StateScanning)
	assets, err := corpus.Collect(r.scanner.Walk(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return r.interruptedBeforeDispatch(logger, result), nil
		}
		return result, services.Wrap(services.ErrNotFound, "scan", "walk corpus", r.scanner.Root(), err)
	}

	r.transition(StateFiltering)
	plan := r.plan(logger, assets)
	result.Plan = plan
	logger.Info("work list ready",
		logging.String(logging.FieldEventType, "plan_ready"),
		logging.Int("discovered", plan.Discovered),
		logging.Int("complete", plan.Complete),
		logging.Int("pending", plan.Pending),
		logging.Int("selected", len(plan.Selected)),
		logging.Int("evicted", len(plan.Evicted)),
		logging.Int("backfilled", plan.Backfilled),
	)

	if r.opts.DryRun {
		r.transition(StateDryRun)
		result.State = StateDryRun
		result.Transitions = r.transitionTrail()
		return result, nil
	}

	stats := report.NewStats(r.opts.MaxReportedErrors)
	stats.SetTotal(len(plan.Selected))
	if r.observer != nil {
		r.observer.RunStarted(plan)
	}

	interrupted := false
	if len(plan.Selected) > 0 && r.opts.StartDelay > 0 {
		logger.Info("starting after grace period", logging.Duration("delay", r.opts.StartDelay))
		if err := r.sleep(ctx, r.opts.StartDelay); err != nil {
			interrupted = true
		}
	}

	rounds := partition(plan.Selected, r.opts.RoundSize)
	sampler := logging.NewProgressSampler(10)
	for i, items := range rounds {
		if interrupted {
			break
		}
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		r.transition(StateRunning)
		stats.MarkStarted(r.now())
		round := r.runRound(ctx, i+1, items, stats, sampler)
		result.Rounds = append(result.Rounds, round)

		if res := r.ledger.Persist(); !res.OK() {
			logging.WarnWithContext(logger, "ledger persist failed after round", "ledger_persist_failed",
				logging.Int(logging.FieldRound, round.Index),
				logging.String("path", res.Path),
				logging.Error(res.Err),
				logging.String(logging.FieldErrorHint, "check free space and permissions on the ledger directory"),
				logging.String(logging.FieldImpact, "progress from this round may be redone on the next run"),
			)
		}
		if r.observer != nil {
			r.observer.RoundFinished(round)
		}

		if i < len(rounds)-1 && r.opts.RoundDelay > 0 {
			r.transition(StatePaused)
			if err := r.sleep(ctx, r.opts.RoundDelay); err != nil {
				interrupted = true
			}
		}
	}
	if ctx.Err() != nil {
		interrupted = true
	}
	stats.MarkFinished(r.now())

	r.transition(StateReporting)
	corpusComplete := false
	if !interrupted {
		corpusComplete = r.markCompletion(logger, assets)
	}

	summary := report.Build(r.runID, stats.Snapshot(), r.now())
	summary.Evicted = len(plan.Evicted)
	summary.Backfilled = plan.Backfilled
	summary.CorpusComplete = corpusComplete
	summary.Interrupted = interrupted
	result.Summary = summary
	result.Interrupted = interrupted

	if interrupted {
		logging.WarnWithContext(logger, "run interrupted; progress was saved", "run_interrupted",
			logging.Int("processed", stats.Snapshot().Processed()),
			logging.Int("total", len(plan.Selected)),
			logging.String(logging.FieldErrorHint, "re-run to resume"),
			logging.String(logging.FieldImpact, "remaining items were not dispatched"),
		)
	}
	logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_finished"),
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
		logging.Int("total", summary.Total),
		logging.Float64("success_rate", summary.SuccessRate),
		logging.String("duration", summary.Duration),
	)

	r.transition(StateDone)
	result.State = StateDone
	result.Transitions = r.transitionTrail()
	return result, nil
}

// interruptedBeforeDispatch finishes a run cancelled while scanning. Nothing
// was dispatched and the ledger is untouched.
func (r *Runner) interruptedBeforeDispatch(logger *slog.Logger, result Result) Result {
	logging.WarnWithContext(logger, "run interrupted during scan", "run_interrupted",
		logging.String(logging.FieldErrorHint, "re-run to resume"),
		logging.String(logging.FieldImpact, "no items were dispatched"),
	)
	summary := report.Build(r.runID, report.NewStats(r.opts.MaxReportedErrors).Snapshot(), r.now())
	summary.Interrupted = true
	result.Summary = summary
	result.Interrupted = true
	r.transition(StateDone)
	result.State = StateDone
	result.Transitions = r.transitionTrail()
	return result
}

// plan reconciles the ledger with the filesystem and builds the work list.
// Incomplete assets the ledger claims are evicted so they are reprocessed;
// complete assets the ledger lacks are backfilled. Dry runs compute the same
// work list without touching the ledger.
func (r *Runner) plan(logger *slog.Logger, assets []corpus.WorkItem) Plan {
	plan := Plan{Discovered: len(assets)}
	var incomplete []corpus.WorkItem
	var stale, missing []string
	for _, item := range assets {
		ledgered := r.ledger.Contains(item.RelativeID)
		if item.Complete {
			plan.Complete++
			if !ledgered {
				missing = append(missing, item.RelativeID)
			}
			continue
		}
		incomplete = append(incomplete, item)
		if ledgered {
			stale = append(stale, item.RelativeID)
		}
	}
	plan.Incomplete = len(incomplete)

	var membership corpus.Membership = r.ledger
	if r.opts.DryRun {
		membership = excluding{base: r.ledger, drop: toSet(stale)}
		plan.Evicted = stale
		plan.Backfilled = len(missing)
	} else {
		if len(stale) > 0 {
			removed, res := r.ledger.Evict(stale)
			plan.Evicted = stale
			logging.WarnWithContext(logger, "ledger entries without artifacts will be reprocessed", "ledger_evicted",
				logging.Int("evicted", removed),
				logging.String("first", stale[0]),
				logging.String(logging.FieldErrorHint, "artifacts were deleted or a previous write failed"),
				logging.String(logging.FieldImpact, "items are transcribed again"),
			)
			r.logPersist(logger, res, "evict")
		}
		if len(missing) > 0 {
			added, res := r.ledger.AppendAll(missing)
			plan.Backfilled = added
			logger.Info("ledger backfilled from existing artifacts",
				logging.String(logging.FieldEventType, "ledger_backfilled"),
				logging.Int("added", added),
			)
			r.logPersist(logger, res, "backfill")
		}
	}

	filtered := corpus.Filter(incomplete, membership)
	plan.AlreadyLedgered = filtered.Dropped
	plan.Pending = len(filtered.Pending)
	plan.Selected = corpus.Limit(filtered.Pending, r.opts.Limit)
	return plan
}

// markCompletion stamps the ledger when every asset found by the scan that
// lacked artifacts is now recorded as completed.
func (r *Runner) markCompletion(logger *slog.Logger, assets []corpus.WorkItem) bool {
	for _, item := range assets {
		if !r.ledger.Contains(item.RelativeID) {
			return false
		}
	}
	res := r.ledger.MarkCompleted()
	r.logPersist(logger, res, "mark completed")
	logger.Info("corpus fully processed",
		logging.String(logging.FieldEventType, "corpus_complete"),
		logging.Int("completed_count", res.Count),
	)
	return true
}

func (r *Runner) logPersist(logger *slog.Logger, res ledger.PersistResult, op string) {
	if res.OK() {
		return
	}
	logging.WarnWithContext(logger, "ledger persist failed", "ledger_persist_failed",
		logging.String("op", op),
		logging.String("path", res.Path),
		logging.Error(res.Err),
		logging.String(logging.FieldErrorHint, "check free space and permissions on the ledger directory"),
		logging.String(logging.FieldImpact, "in-memory progress is kept and written on the next persist"),
	)
}

func partition(items []corpus.WorkItem, size int) [][]corpus.WorkItem {
	if size <= 0 {
		size = defaultRoundSize
	}
	var rounds [][]corpus.WorkItem
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		rounds = append(rounds, items[start:end])
	}
	return rounds
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type excluding struct {
	base corpus.Membership
	drop map[string]struct{}
}

func (e excluding) Contains(id string) bool {
	if _, ok := e.drop[id]; ok {
		return false
	}
	return e.base.Contains(id)
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// String renders a state for CLI output.
func (s State) String() string { return string(s) }
