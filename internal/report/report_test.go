package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cuebatch/internal/services"
)

func TestStatsRecordAndCap(t *testing.T) {
	stats := NewStats(2)
	stats.SetTotal(6)
	stats.Record("a", services.OutcomeSuccess, nil)
	stats.Record("b", services.OutcomeFailed, errors.New("boom"))
	stats.Record("c", services.OutcomeSkippedTooLarge, nil)
	stats.Record("d", services.OutcomeSkippedEmptyResult, errors.New("no segments"))
	stats.Record("e", services.OutcomeFailed, errors.New("late"))

	snap := stats.Snapshot()
	if snap.Completed != 1 || snap.Failed != 3 || snap.Skipped != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.Processed() != 5 || snap.Remaining() != 1 {
		t.Fatalf("processed=%d remaining=%d", snap.Processed(), snap.Remaining())
	}
	if len(snap.Errors) != 2 || snap.ErrorsTotal != 4 {
		t.Fatalf("expected capped errors, got %d of %d", len(snap.Errors), snap.ErrorsTotal)
	}
	if snap.Errors[0].Item != "b" || snap.Errors[0].Message != "boom" {
		t.Fatalf("unexpected first error: %+v", snap.Errors[0])
	}
	if snap.Errors[1].Message != string(services.OutcomeSkippedTooLarge) {
		t.Fatalf("nil error should fall back to the outcome tag: %+v", snap.Errors[1])
	}
}

func TestStatsConcurrentRecord(t *testing.T) {
	stats := NewStats(0)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats.Record(fmt.Sprint(i), services.OutcomeSuccess, nil)
		}()
	}
	wg.Wait()
	if got := stats.Snapshot().Completed; got != 50 {
		t.Fatalf("completed = %d, want 50", got)
	}
}

func TestSuccessRate(t *testing.T) {
	tests := []struct {
		completed, total int
		want             float64
	}{
		{0, 0, 0},
		{22, 22, 100},
		{1, 3, 33.3},
		{2, 3, 66.7},
		{21, 22, 95.5},
	}
	for _, tt := range tests {
		if got := SuccessRate(tt.completed, tt.total); got != tt.want {
			t.Errorf("SuccessRate(%d, %d) = %v, want %v", tt.completed, tt.total, got, tt.want)
		}
	}
}

func TestBuildAndWrite(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	stats := NewStats(20)
	stats.SetTotal(2)
	stats.MarkStarted(start)
	stats.MarkStarted(start.Add(time.Hour))
	stats.Record("a", services.OutcomeSuccess, nil)
	stats.Record("b", services.OutcomeFailed, errors.New("boom"))
	stats.MarkFinished(start.Add(90 * time.Second))

	summary := Build("run-1", stats.Snapshot(), start.Add(time.Hour))
	if summary.Duration != "1.5 minutes" || summary.DurationSeconds != 90 {
		t.Fatalf("unexpected duration: %q %v", summary.Duration, summary.DurationSeconds)
	}
	if summary.SuccessRate != 50 || summary.Total != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	path := filepath.Join(t.TempDir(), "out", "report.json")
	if err := Write(path, summary); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"completed", "failed", "skipped", "total", "successRate", "duration", "errors", "timestamp", "runId"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("report missing key %q", key)
		}
	}
	if err := Write("", summary); err != nil {
		t.Fatalf("empty path should be a no-op: %v", err)
	}
}

func TestBuildEmptyRun(t *testing.T) {
	summary := Build("r", NewStats(5).Snapshot(), time.Now())
	if summary.Errors == nil || len(summary.Errors) != 0 {
		t.Fatalf("errors should be an empty list, got %#v", summary.Errors)
	}
	if summary.SuccessRate != 0 || summary.Duration != "0.0 minutes" {
		t.Fatalf("unexpected empty summary: %+v", summary)
	}
}

func TestEstimateCost(t *testing.T) {
	est := EstimateCost(1000, 0.5, 0.006)
	if est.Minutes != 500 || est.Cost != 3 {
		t.Fatalf("unexpected estimate: %+v", est)
	}
	if got := est.String(); got != "1,000 assets, ~500 audio minutes, ~$3" {
		t.Fatalf("unexpected rendering %q", got)
	}
	if EstimateCost(-1, 1, 1).Assets != 0 {
		t.Fatal("negative assets should clamp to zero")
	}
}

func TestETA(t *testing.T) {
	tests := []struct {
		elapsed   time.Duration
		processed int
		remaining int
		want      time.Duration
	}{
		{10 * time.Second, 2, 4, 20 * time.Second},
		{10 * time.Second, 0, 4, 0},
		{10 * time.Second, 3, 0, 0},
		{0, 3, 3, 0},
	}
	for _, tt := range tests {
		if got := ETA(tt.elapsed, tt.processed, tt.remaining); got != tt.want {
			t.Errorf("ETA(%v, %d, %d) = %v, want %v", tt.elapsed, tt.processed, tt.remaining, got, tt.want)
		}
	}
}
