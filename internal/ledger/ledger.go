package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"cuebatch/internal/fileutil"
	"cuebatch/internal/logging"
)

// PersistResult reports the outcome of writing the ledger to disk. A failed
// persist leaves the in-memory ledger intact; the next successful persist
// writes everything.
type PersistResult struct {
	Path  string
	Count int
	Err   error
}

// OK reports whether the ledger reached disk.
func (r PersistResult) OK() bool { return r.Err == nil }

// Snapshot is a point-in-time copy of ledger state.
type Snapshot struct {
	CompletedIDs []string
	CompletedAt  *time.Time
	UpdatedAt    *time.Time
}

type document struct {
	CompletedIDs []string   `json:"completedIds"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
	// Written by earlier releases; merged into CompletedIDs on load.
	ProcessedVideos []string `json:"processedVideos,omitempty"`
}

// Ledger is the durable set of completed work item IDs. All mutation goes
// through its methods, which serialize on an internal mutex.
type Ledger struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	ids         []string
	index       map[string]struct{}
	completedAt *time.Time
	updatedAt   *time.Time
}

// Load reads the ledger at path. A missing file yields an empty ledger. A file
// that cannot be parsed is logged and replaced by an empty ledger on the next
// persist. Read errors other than "not exist" are returned.
func Load(path string, logger *slog.Logger) (*Ledger, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("ledger path is required")
	}
	logger = logging.NewComponentLogger(logger, "ledger")
	l := &Ledger{
		path:   path,
		logger: logger,
		now:    time.Now,
		index:  make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("ledger not found; starting empty", logging.String("path", path))
			return l, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return l, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		logging.WarnWithContext(logger, "ledger unreadable; starting fresh", "ledger_parse_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect or delete the ledger file"),
			logging.String(logging.FieldImpact, "completed items are re-checked against artifacts on disk"),
		)
		return l, nil
	}

	for _, id := range append(doc.CompletedIDs, doc.ProcessedVideos...) {
		l.add(id)
	}
	l.completedAt = doc.CompletedAt
	l.updatedAt = doc.UpdatedAt
	logger.Debug("ledger loaded",
		logging.String("path", path),
		logging.Int("completed_count", len(l.ids)),
	)
	return l, nil
}

// Path returns the ledger file location.
func (l *Ledger) Path() string { return l.path }

// Contains reports whether id is recorded as completed.
func (l *Ledger) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.index[id]
	return ok
}

// Len returns the number of completed IDs.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}

// Snapshot returns a copy of the ledger state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		CompletedIDs: append([]string(nil), l.ids...),
		CompletedAt:  copyTime(l.completedAt),
		UpdatedAt:    copyTime(l.updatedAt),
	}
}

// Append records id as completed and persists the ledger. Appending an ID
// that is already present does not duplicate it but still persists.
func (l *Ledger) Append(id string) (bool, PersistResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	added := l.add(id)
	return added, l.persistLocked()
}

// AppendAll records several IDs under one persist.
func (l *Ledger) AppendAll(ids []string) (int, PersistResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	added := 0
	for _, id := range ids {
		if l.add(id) {
			added++
		}
	}
	return added, l.persistLocked()
}

// Evict removes IDs whose artifacts are no longer trustworthy. Evicting any
// ID clears the completion timestamp.
func (l *Ledger) Evict(ids []string) (int, PersistResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := l.index[id]; ok {
			drop[id] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return 0, PersistResult{Path: l.path, Count: len(l.ids)}
	}
	kept := l.ids[:0]
	for _, id := range l.ids {
		if _, ok := drop[id]; ok {
			delete(l.index, id)
			continue
		}
		kept = append(kept, id)
	}
	l.ids = kept
	l.completedAt = nil
	return len(drop), l.persistLocked()
}

// MarkCompleted stamps the ledger as covering the whole corpus.
func (l *Ledger) MarkCompleted() PersistResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.now().UTC()
	l.completedAt = &ts
	return l.persistLocked()
}

// Persist writes the ledger to disk.
func (l *Ledger) Persist() PersistResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.persistLocked()
}

// add stores id verbatim; ids are relative paths and may legitimately carry
// leading or trailing spaces.
func (l *Ledger) add(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := l.index[id]; ok {
		return false
	}
	l.index[id] = struct{}{}
	l.ids = append(l.ids, id)
	return true
}

func (l *Ledger) persistLocked() PersistResult {
	ts := l.now().UTC()
	doc := document{
		CompletedIDs: l.ids,
		CompletedAt:  l.completedAt,
		UpdatedAt:    &ts,
	}
	if doc.CompletedIDs == nil {
		doc.CompletedIDs = []string{}
	}
	result := PersistResult{Path: l.path, Count: len(l.ids)}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		result.Err = fmt.Errorf("marshal ledger: %w", err)
		return result
	}
	if err := fileutil.WriteFileAtomic(l.path, append(data, '\n'), 0o644); err != nil {
		result.Err = fmt.Errorf("persist ledger: %w", err)
		return result
	}
	l.updatedAt = &ts
	return result
}

// Remove deletes the ledger file. A missing file is not an error.
func Remove(path string) (bool, error) {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("remove ledger: %w", err)
	}
	return true, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
