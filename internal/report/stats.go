package report

import (
	"sync"
	"time"

	"cuebatch/internal/services"
)

const defaultMaxErrors = 20

// ErrorEntry is one reported item failure.
type ErrorEntry struct {
	Item    string           `json:"item"`
	Outcome services.Outcome `json:"outcome"`
	Message string           `json:"message"`
}

// Stats accumulates per-run counters. Safe for concurrent use.
type Stats struct {
	mu          sync.Mutex
	maxErrors   int
	total       int
	completed   int
	failed      int
	skipped     int
	errors      []ErrorEntry
	errorsTotal int
	started     time.Time
	finished    time.Time
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Total     int
	Completed int
	Failed    int
	Skipped   int
	// Errors holds at most the configured number of entries; ErrorsTotal counts all of them.
	Errors      []ErrorEntry
	ErrorsTotal int
	Started     time.Time
	Finished    time.Time
}

// Processed counts items with a recorded outcome.
func (s Snapshot) Processed() int { return s.Completed + s.Failed + s.Skipped }

// Remaining counts items still waiting for an outcome.
func (s Snapshot) Remaining() int {
	if r := s.Total - s.Processed(); r > 0 {
		return r
	}
	return 0
}

// Elapsed is the wall-clock time from first dispatch to finish, or to now
// while the run is in progress.
func (s Snapshot) Elapsed(now time.Time) time.Duration {
	if s.Started.IsZero() {
		return 0
	}
	end := s.Finished
	if end.IsZero() {
		end = now
	}
	if end.Before(s.Started) {
		return 0
	}
	return end.Sub(s.Started)
}

// NewStats returns counters that keep the first maxErrors error entries.
func NewStats(maxErrors int) *Stats {
	if maxErrors <= 0 {
		maxErrors = defaultMaxErrors
	}
	return &Stats{maxErrors: maxErrors}
}

// SetTotal records how many items the run will dispatch.
func (s *Stats) SetTotal(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = n
}

// MarkStarted records the first dispatch. Later calls are ignored.
func (s *Stats) MarkStarted(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() {
		s.started = t
	}
}

// MarkFinished records the end of the last round.
func (s *Stats) MarkFinished(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = t
}

// Record counts one item outcome. Non-success outcomes add an error entry
// while the list has room.
func (s *Stats) Record(item string, outcome services.Outcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case outcome == services.OutcomeSuccess:
		s.completed++
		return
	case outcome.Skipped():
		s.skipped++
	default:
		s.failed++
	}
	s.errorsTotal++
	if len(s.errors) >= s.maxErrors {
		return
	}
	message := string(outcome)
	if err != nil {
		message = err.Error()
	}
	s.errors = append(s.errors, ErrorEntry{Item: item, Outcome: outcome, Message: message})
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Total:       s.total,
		Completed:   s.completed,
		Failed:      s.failed,
		Skipped:     s.skipped,
		Errors:      append([]ErrorEntry(nil), s.errors...),
		ErrorsTotal: s.errorsTotal,
		Started:     s.started,
		Finished:    s.finished,
	}
}
