package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one recorded invocation of the batch runner.
type Run struct {
	RunID           string
	StartedAt       time.Time
	FinishedAt      time.Time
	CorpusDir       string
	Total           int
	Completed       int
	Failed          int
	Skipped         int
	SuccessRate     float64
	DurationSeconds float64
	Evicted         int
	Backfilled      int
	Interrupted     bool
	CorpusComplete  bool
}

// ItemRecord is the outcome of one item within a run.
type ItemRecord struct {
	ItemID   string
	Round    int
	Outcome  string
	Message  string
	Duration time.Duration
}

// Store persists run history in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or connects to the history database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRun stores a run and its item outcomes in one transaction. Recording
// the same run ID again replaces the earlier row.
func (s *Store) RecordRun(ctx context.Context, run Run, items []ItemRecord) error {
	if strings.TrimSpace(run.RunID) == "" {
		return errors.New("run id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range []string{
		"DELETE FROM run_items WHERE run_id = ?",
		"DELETE FROM runs WHERE run_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, run.RunID); err != nil {
			return fmt.Errorf("clear previous run: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (
            run_id, started_at, finished_at, corpus_dir, total, completed, failed, skipped,
            success_rate, duration_seconds, evicted, backfilled, interrupted, corpus_complete
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.CorpusDir,
		run.Total,
		run.Completed,
		run.Failed,
		run.Skipped,
		run.SuccessRate,
		run.DurationSeconds,
		run.Evicted,
		run.Backfilled,
		boolToInt(run.Interrupted),
		boolToInt(run.CorpusComplete),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO run_items (run_id, item_id, round, outcome, message, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare item insert: %w", err)
	}
	defer stmt.Close()
	for _, item := range items {
		if _, err := stmt.ExecContext(ctx,
			run.RunID,
			item.ItemID,
			item.Round,
			item.Outcome,
			nullableString(item.Message),
			item.Duration.Milliseconds(),
		); err != nil {
			return fmt.Errorf("insert item %s: %w", item.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}
	return nil
}

const runColumns = "run_id, started_at, finished_at, corpus_dir, total, completed, failed, skipped, success_rate, duration_seconds, evicted, backfilled, interrupted, corpus_complete"

// Recent returns up to limit runs, newest first. A non-positive limit returns all runs.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, run_id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Latest returns the most recent run, or nil when none is recorded.
func (s *Store) Latest(ctx context.Context) (*Run, error) {
	runs, err := s.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// Items returns the item outcomes recorded for runID in round order.
func (s *Store) Items(ctx context.Context, runID string) ([]ItemRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, round, outcome, message, duration_ms FROM run_items
        WHERE run_id = ? ORDER BY round, item_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run items: %w", err)
	}
	defer rows.Close()

	var items []ItemRecord
	for rows.Next() {
		var (
			item       ItemRecord
			message    sql.NullString
			durationMS int64
		)
		if err := rows.Scan(&item.ItemID, &item.Round, &item.Outcome, &message, &durationMS); err != nil {
			return nil, fmt.Errorf("scan run item: %w", err)
		}
		item.Message = message.String
		item.Duration = time.Duration(durationMS) * time.Millisecond
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run items: %w", err)
	}
	return items, nil
}

// FailureCounts returns how many runs recorded a failed outcome for each
// item, for items that failed at least minFailures times. Empty results count
// as failures.
func (s *Store) FailureCounts(ctx context.Context, minFailures int) (map[string]int, error) {
	if minFailures < 1 {
		minFailures = 1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, COUNT(1) FROM run_items WHERE outcome IN ('failed', 'skipped_empty_result')
        GROUP BY item_id HAVING COUNT(1) >= ?`, minFailures)
	if err != nil {
		return nil, fmt.Errorf("query failure counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scan failure count: %w", err)
		}
		counts[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failure counts: %w", err)
	}
	return counts, nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run            Run
		startedRaw     string
		finishedRaw    string
		interrupted    int
		corpusComplete int
	)
	if err := scanner.Scan(
		&run.RunID,
		&startedRaw,
		&finishedRaw,
		&run.CorpusDir,
		&run.Total,
		&run.Completed,
		&run.Failed,
		&run.Skipped,
		&run.SuccessRate,
		&run.DurationSeconds,
		&run.Evicted,
		&run.Backfilled,
		&interrupted,
		&corpusComplete,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = parseTime(startedRaw)
	run.FinishedAt = parseTime(finishedRaw)
	run.Interrupted = interrupted != 0
	run.CorpusComplete = corpusComplete != 0
	return run, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
