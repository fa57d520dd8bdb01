package report

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"cuebatch/internal/fileutil"
)

// Summary is the end-of-run report. It is informational and never read back
// by the pipeline.
type Summary struct {
	RunID           string       `json:"runId"`
	Completed       int          `json:"completed"`
	Failed          int          `json:"failed"`
	Skipped         int          `json:"skipped"`
	Total           int          `json:"total"`
	SuccessRate     float64      `json:"successRate"`
	Duration        string       `json:"duration"`
	DurationSeconds float64      `json:"durationSeconds"`
	Errors          []ErrorEntry `json:"errors"`
	ErrorsOmitted   int          `json:"errorsOmitted,omitempty"`
	Evicted         int          `json:"evicted,omitempty"`
	Backfilled      int          `json:"backfilled,omitempty"`
	CorpusComplete  bool         `json:"corpusComplete"`
	Interrupted     bool         `json:"interrupted"`
	Timestamp       time.Time    `json:"timestamp"`
}

// Build derives a Summary from a stats snapshot.
func Build(runID string, snap Snapshot, now time.Time) Summary {
	elapsed := snap.Elapsed(now)
	errs := snap.Errors
	if errs == nil {
		errs = []ErrorEntry{}
	}
	return Summary{
		RunID:           runID,
		Completed:       snap.Completed,
		Failed:          snap.Failed,
		Skipped:         snap.Skipped,
		Total:           snap.Total,
		SuccessRate:     SuccessRate(snap.Completed, snap.Total),
		Duration:        FormatMinutes(elapsed),
		DurationSeconds: math.Round(elapsed.Seconds()*1000) / 1000,
		Errors:          errs,
		ErrorsOmitted:   snap.ErrorsTotal - len(snap.Errors),
		Timestamp:       now.UTC(),
	}
}

// SuccessRate returns completed/total as a percentage rounded to one decimal.
// A zero total yields zero.
func SuccessRate(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(total)*1000) / 10
}

// FormatMinutes renders a duration as fractional minutes, e.g. "2.5 minutes".
func FormatMinutes(d time.Duration) string {
	return fmt.Sprintf("%.1f minutes", d.Minutes())
}

// Write stores the summary as indented JSON at path.
func Write(path string, summary Summary) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
