package batch

import (
	"context"
	"time"

	"cuebatch/internal/corpus"
	"cuebatch/internal/report"
	"cuebatch/internal/services"
	"cuebatch/internal/subtitles"
)

// State is a scheduler lifecycle phase.
type State string

const (
	StateIdle      State = "idle"
	StateScanning  State = "scanning"
	StateFiltering State = "filtering"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateReporting State = "reporting"
	StateDone      State = "done"
	StateDryRun    State = "dry_run"
)

// Transcriber performs the two external calls for one asset.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) ([]subtitles.Segment, error)
	Translate(ctx context.Context, path string) ([]subtitles.Segment, error)
}

// Observer receives progress callbacks. Calls for items in the same round
// may arrive concurrently.
type Observer interface {
	RunStarted(plan Plan)
	ItemFinished(result ItemResult, snap report.Snapshot)
	RoundFinished(round Round)
}

// Options tunes a run.
type Options struct {
	// RoundSize caps how many items run concurrently. Defaults to 10.
	RoundSize int
	// RoundDelay is the pause between rounds.
	RoundDelay time.Duration
	// StartDelay is a grace period before the first round.
	StartDelay time.Duration
	// MaxFileBytes rejects larger assets before any external call. Zero disables the check.
	MaxFileBytes int64
	// Limit truncates the filtered work list. Zero means no limit.
	Limit int
	// DryRun stops after filtering.
	DryRun bool
	// MaxReportedErrors caps the error list in the summary. Defaults to 20.
	MaxReportedErrors int
}

// Plan describes what scanning and filtering found.
type Plan struct {
	// Discovered counts every asset under the corpus root.
	Discovered int
	// Complete counts assets that already had both artifacts.
	Complete int
	// Incomplete counts assets missing at least one artifact.
	Incomplete int
	// AlreadyLedgered counts incomplete assets the filter removed.
	AlreadyLedgered int
	// Evicted lists ledger IDs dropped because their artifacts were missing.
	Evicted []string
	// Backfilled counts complete assets added to the ledger.
	Backfilled int
	// Pending is the filtered work list before Limit.
	Pending int
	// Selected is the work list after Limit, in scan order.
	Selected []corpus.WorkItem
}

// ItemResult is the outcome of one work item.
type ItemResult struct {
	Round    int
	Item     corpus.WorkItem
	Outcome  services.Outcome
	Err      error
	Duration time.Duration
}

// Round is one fan-out/join group of items.
type Round struct {
	Index   int
	Results []ItemResult
}

// Result is returned from Run.
type Result struct {
	RunID       string
	State       State
	Transitions []State
	Plan        Plan
	Rounds      []Round
	Summary     report.Summary
	Interrupted bool
}
