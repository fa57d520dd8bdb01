package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"cuebatch/internal/corpus"
	"cuebatch/internal/ledger"
	"cuebatch/internal/logging"
	"cuebatch/internal/report"
	"cuebatch/internal/services"
	"cuebatch/internal/subtitles"
)

type event struct {
	kind  string
	round int
	id    string
}

type fakeTranscriber struct {
	mu        sync.Mutex
	calls     map[string]int
	events    []event
	active    int
	maxActive int
	fail      map[string]error
	empty     map[string]bool
	panics    map[string]bool
	delay     time.Duration
}

func newFakeTranscriber() *fakeTranscriber {
	return &fakeTranscriber{
		calls:  make(map[string]int),
		fail:   make(map[string]error),
		empty:  make(map[string]bool),
		panics: make(map[string]bool),
	}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, path string) ([]subtitles.Segment, error) {
	return f.call(ctx, "transcribe", path)
}

func (f *fakeTranscriber) Translate(ctx context.Context, path string) ([]subtitles.Segment, error) {
	return f.call(ctx, "translate", path)
}

func (f *fakeTranscriber) call(ctx context.Context, op, path string) ([]subtitles.Segment, error) {
	name := filepath.Base(path)
	round, _ := services.RoundFromContext(ctx)

	f.mu.Lock()
	f.calls[op]++
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.events = append(f.events, event{kind: "start", round: round, id: name})
	failErr := f.fail[name]
	empty := f.empty[name]
	panics := f.panics[name]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.events = append(f.events, event{kind: "end", round: round, id: name})
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if panics {
		panic("boom " + name)
	}
	if failErr != nil {
		return nil, failErr
	}
	if empty {
		return nil, nil
	}
	return []subtitles.Segment{{Start: 0, End: 1.5, Text: op + " " + name}}, nil
}

func (f *fakeTranscriber) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

const (
	sourceSuffix = ".en.srt"
	targetSuffix = ".es.srt"
)

type fixture struct {
	root       string
	ledgerPath string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "corpus")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	return fixture{root: root, ledgerPath: filepath.Join(base, "state", "progress.json")}
}

func (f fixture) addAsset(t *testing.T, rel string, size int, complete bool) {
	t.Helper()
	path := filepath.Join(f.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	if complete {
		base := strings.TrimSuffix(path, filepath.Ext(path))
		for _, suffix := range []string{sourceSuffix, targetSuffix} {
			if err := os.WriteFile(base+suffix, []byte("1\n00:00:00,000 --> 00:00:01,000\nhi\n"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func (f fixture) scanner() *corpus.Scanner {
	return corpus.NewScanner(f.root, corpus.Options{
		Extensions:   []string{".mp4"},
		SourceSuffix: sourceSuffix,
		TargetSuffix: targetSuffix,
	})
}

func (f fixture) loadLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Load(f.ledgerPath, logging.NewNop())
	if err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	return l
}

func (f fixture) run(t *testing.T, tr Transcriber, opts Options, options ...RunnerOption) (Result, *ledger.Ledger) {
	t.Helper()
	l := f.loadLedger(t)
	runner, err := NewRunner(f.scanner(), l, tr, opts, logging.NewNop(), options...)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	res, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res, l
}

func TestRunProcessesPendingItemsAndWritesArtifacts(t *testing.T) {
	fx := newFixture(t)
	fx.addAsset(t, "a.mp4", 10, false)
	fx.addAsset(t, "show/b.mp4", 10, false)
	fx.addAsset(t, "show/notes.txt", 10, false)

	tr := newFakeTranscriber()
	res, l := fx.run(t, tr, Options{RoundSize: 10})

	if res.State != StateDone {
		t.Fatalf("expected done state, got %s", res.State)
	}
	if res.Summary.Completed != 2 || res.Summary.Total != 2 || res.Summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}
	if res.Summary.SuccessRate != 100 {
		t.Fatalf("expected 100%% success, got %v", res.Summary.SuccessRate)
	}
	if !l.Contains("a.mp4") || !l.Contains("show/b.mp4") {
		t.Fatalf("ledger missing entries: %v", l.Snapshot().CompletedIDs)
	}

	data, err := os.ReadFile(filepath.Join(fx.root, "show", "b"+targetSuffix))
	if err != nil {
		t.Fatalf("read target artifact: %v", err)
	}
	if issues := subtitles.ValidateContent(string(data)); len(issues) != 0 {
		t.Fatalf("artifact failed validation: %v", issues)
	}
	if !strings.Contains(string(data), "translate b.mp4") {
		t.Fatalf("unexpected target artifact content: %q", data)
	}

	want := []State{StateIdle, StateScanning, StateFiltering, StateRunning, StateReporting, StateDone}
	if fmt.Sprint(res.Transitions) != fmt.Sprint(want) {
		t.Fatalf("transitions = %v, want %v", res.Transitions, want)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	for i := range 4 {
		fx.addAsset(t, fmt.Sprintf("ep%02d.mp4", i), 10, false)
	}
	fx.run(t, newFakeTranscriber(), Options{RoundSize: 2})

	second := newFakeTranscriber()
	res, _ := fx.run(t, second, Options{RoundSize: 2})
	if got := second.callCount("transcribe"); got != 0 {
		t.Fatalf("expected no calls on second run, got %d", got)
	}
	if res.Summary.Total != 0 || res.Plan.Complete != 4 {
		t.Fatalf("unexpected second run: total=%d complete=%d", res.Summary.Total, res.Plan.Complete)
	}
	if !res.Summary.CorpusComplete {
		t.Fatal("expected corpus to be reported complete")
	}
}

func TestRunRoundsAreBarriers(t *testing.T) {
	fx := newFixture(t)
	for i := range 7 {
		fx.addAsset(t, fmt.Sprintf("ep%02d.mp4", i), 10, false)
	}
	tr := newFakeTranscriber()
	tr.delay = 5 * time.Millisecond
	res, _ := fx.run(t, tr, Options{RoundSize: 3})

	if len(res.Rounds) != 3 {
		t.Fatalf("expected 3 rounds, got %d", len(res.Rounds))
	}
	sizes := []int{len(res.Rounds[0].Results), len(res.Rounds[1].Results), len(res.Rounds[2].Results)}
	if fmt.Sprint(sizes) != "[3 3 1]" {
		t.Fatalf("round sizes = %v", sizes)
	}
	if tr.maxActive > 3 {
		t.Fatalf("max concurrency %d exceeds round size", tr.maxActive)
	}
	last := 0
	for _, ev := range tr.events {
		if ev.round < last {
			t.Fatalf("event %s for %s in round %d after round %d started", ev.kind, ev.id, ev.round, last)
		}
		last = ev.round
	}
}

func TestRunPausesBetweenRoundsOnly(t *testing.T) {
	fx := newFixture(t)
	for i := range 5 {
		fx.addAsset(t, fmt.Sprintf("ep%02d.mp4", i), 10, false)
	}
	l := fx.loadLedger(t)
	runner, err := NewRunner(fx.scanner(), l, newFakeTranscriber(), Options{RoundSize: 2, RoundDelay: time.Minute, StartDelay: time.Hour}, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	var sleeps []time.Duration
	runner.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	res, err := runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(sleeps) != fmt.Sprint([]time.Duration{time.Hour, time.Minute, time.Minute}) {
		t.Fatalf("sleeps = %v", sleeps)
	}
	paused := 0
	for _, s := range res.Transitions {
		if s == StatePaused {
			paused++
		}
	}
	if paused != 2 {
		t.Fatalf("expected two paused transitions, got %d in %v", paused, res.Transitions)
	}
}

func TestRunIsolatesItemFailures(t *testing.T) {
	fx := newFixture(t)
	fx.addAsset(t, "bad.mp4", 10, false)
	fx.addAsset(t, "big.mp4", 200, false)
	fx.addAsset(t, "crash.mp4", 10, false)
	fx.addAsset(t, "edge.mp4", 100, false)
	fx.addAsset(t, "good.mp4", 10, false)
	fx.addAsset(t, "quiet.mp4", 10, false)

	tr := newFakeTranscriber()
	tr.fail["bad.mp4"] = services.Wrap(services.ErrExternalTool, "transcribe", "post", "status 400", nil)
	tr.panics["crash.mp4"] = true
	tr.empty["quiet.mp4"] = true

	res, l := fx.run(t, tr, Options{RoundSize: 10, MaxFileBytes: 100})

	outcomes := make(map[string]services.Outcome)
	for _, r := range res.Rounds[0].Results {
		outcomes[r.Item.RelativeID] = r.Outcome
	}
	want := map[string]services.Outcome{
		"bad.mp4":   services.OutcomeFailed,
		"big.mp4":   services.OutcomeSkippedTooLarge,
		"crash.mp4": services.OutcomeFailed,
		"edge.mp4":  services.OutcomeSuccess,
		"good.mp4":  services.OutcomeSuccess,
		"quiet.mp4": services.OutcomeSkippedEmptyResult,
	}
	for id, outcome := range want {
		if outcomes[id] != outcome {
			t.Errorf("%s: outcome %q, want %q", id, outcomes[id], outcome)
		}
	}
	// An empty result is a failure; only the size gate counts as skipped.
	if res.Summary.Completed != 2 || res.Summary.Failed != 3 || res.Summary.Skipped != 1 {
		t.Fatalf("unexpected summary counts: %+v", res.Summary)
	}
	if len(res.Summary.Errors) != 4 {
		t.Fatalf("expected 4 error entries, got %d", len(res.Summary.Errors))
	}
	if !l.Contains("good.mp4") || !l.Contains("edge.mp4") || l.Len() != 2 {
		t.Fatalf("ledger = %v, want edge.mp4 and good.mp4", l.Snapshot().CompletedIDs)
	}
	if res.Summary.CorpusComplete {
		t.Fatal("corpus must not be complete while items remain")
	}
	if _, err := os.Stat(filepath.Join(fx.root, "big"+sourceSuffix)); !os.IsNotExist(err) {
		t.Fatalf("skipped item should not produce artifacts, stat err=%v", err)
	}

	// Oversized assets never reach the transcriber.
	for _, ev := range tr.events {
		if ev.id == "big.mp4" {
			t.Fatal("oversized asset was sent to the transcriber")
		}
	}
}

func TestRunKeepsWhitespaceInRelativeIDs(t *testing.T) {
	fx := newFixture(t)
	fx.addAsset(t, " lead.mp4", 10, false)
	fx.addAsset(t, "ok.mp4", 10, false)

	res, l := fx.run(t, newFakeTranscriber(), Options{RoundSize: 10})
	if !l.Contains(" lead.mp4") || l.Contains("lead.mp4") {
		t.Fatalf("ledger ids = %q, want the relative id verbatim", l.Snapshot().CompletedIDs)
	}
	if !res.Summary.CorpusComplete || l.Snapshot().CompletedAt == nil {
		t.Fatal("expected completion once every asset is ledgered")
	}

	again := newFakeTranscriber()
	res, _ = fx.run(t, again, Options{RoundSize: 10})
	if got := again.callCount("transcribe"); got != 0 {
		t.Fatalf("second run transcribed %d items, want 0", got)
	}
	if !res.Summary.CorpusComplete || len(res.Plan.Evicted) != 0 {
		t.Fatalf("second run: complete=%v evicted=%v", res.Summary.CorpusComplete, res.Plan.Evicted)
	}
}

func TestRunBackfillsAndCountsOnlyPending(t *testing.T) {
	fx := newFixture(t)
	for i := range 25 {
		fx.addAsset(t, fmt.Sprintf("ep%02d.mp4", i), 10, i < 3)
	}
	tr := newFakeTranscriber()
	res, l := fx.run(t, tr, Options{RoundSize: 10})

	if res.Plan.Backfilled != 3 {
		t.Fatalf("backfilled = %d, want 3", res.Plan.Backfilled)
	}
	if res.Summary.Total != 22 || res.Summary.Completed != 22 {
		t.Fatalf("total/completed = %d/%d, want 22/22", res.Summary.Total, res.Summary.Completed)
	}
	sizes := make([]int, 0, len(res.Rounds))
	for _, r := range res.Rounds {
		sizes = append(sizes, len(r.Results))
	}
	if fmt.Sprint(sizes) != "[10 10 2]" {
		t.Fatalf("round sizes = %v", sizes)
	}
	if got := tr.callCount("transcribe"); got != 22 {
		t.Fatalf("transcribe calls = %d, want 22", got)
	}
	snap := l.Snapshot()
	if len(snap.CompletedIDs) != 25 {
		t.Fatalf("ledger size = %d, want 25", len(snap.CompletedIDs))
	}
	if snap.CompletedAt == nil || !res.Summary.CorpusComplete {
		t.Fatal("expected completion timestamp after a full pass")
	}
}

func TestRunReprocessesItemsWithMissingArtifacts(t *testing.T) {
	fx := newFixture(t)
	fx.addAsset(t, "a.mp4", 10, false)
	fx.addAsset(t, "b.mp4", 10, false)
	fx.run(t, newFakeTranscriber(), Options{})

	if err := os.Remove(filepath.Join(fx.root, "b"+targetSuffix)); err != nil {
		t.Fatal(err)
	}

	tr := newFakeTranscriber()
	res, l := fx.run(t, tr, Options{})
	if len(res.Plan.Evicted) != 1 || res.Plan.Evicted[0] != "b.mp4" {
		t.Fatalf("evicted = %v, want [b.mp4]", res.Plan.Evicted)
	}
	if res.Summary.Total != 1 || res.Summary.Completed != 1 || res.Summary.Evicted != 1 {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}
	if tr.callCount("translate") != 1 {
		t.Fatalf("expected one translate call, got %d", tr.callCount("translate"))
	}
	if !l.Contains("b.mp4") {
		t.Fatal("b.mp4 should be re-recorded")
	}
	if _, err := os.Stat(filepath.Join(fx.root, "b"+targetSuffix)); err != nil {
		t.Fatalf("target artifact not regenerated: %v", err)
	}
}

func TestRunDryRunDoesNotMutate(t *testing.T) {
	fx := newFixture(t)
	fx.addAsset(t, "a.mp4", 10, true)
	for i := range 4 {
		fx.addAsset(t, fmt.Sprintf("ep%02d.mp4", i), 10, false)
	}

	tr := newFakeTranscriber()
	res, l := fx.run(t, tr, Options{DryRun: true, Limit: 3})

	if res.State != StateDryRun {
		t.Fatalf("state = %s, want dry_run", res.State)
	}
	if len(res.Plan.Selected) != 3 || res.Plan.Pending != 4 {
		t.Fatalf("selected=%d pending=%d", len(res.Plan.Selected), res.Plan.Pending)
	}
	if res.Plan.Selected[0].RelativeID != "ep00.mp4" {
		t.Fatalf("selection not in scan order: %s", res.Plan.Selected[0].RelativeID)
	}
	if res.Plan.Backfilled != 1 {
		t.Fatalf("dry run should report the pending backfill, got %d", res.Plan.Backfilled)
	}
	if tr.callCount("transcribe") != 0 {
		t.Fatal("dry run must not call the transcriber")
	}
	if l.Len() != 0 {
		t.Fatalf("dry run mutated ledger: %v", l.Snapshot().CompletedIDs)
	}
	if _, err := os.Stat(fx.ledgerPath); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote ledger file, stat err=%v", err)
	}
}

func TestRunLimitTruncatesWorkList(t *testing.T) {
	fx := newFixture(t)
	for i := range 5 {
		fx.addAsset(t, fmt.Sprintf("ep%02d.mp4", i), 10, false)
	}
	res, l := fx.run(t, newFakeTranscriber(), Options{Limit: 2})
	if res.Summary.Total != 2 || l.Len() != 2 {
		t.Fatalf("total=%d ledger=%d, want 2/2", res.Summary.Total, l.Len())
	}
	if res.Summary.CorpusComplete {
		t.Fatal("partial run must not mark the corpus complete")
	}
}

type cancelAfterRound struct {
	cancel context.CancelFunc
	mu     sync.Mutex
	items  int
	rounds int
}

func (c *cancelAfterRound) RunStarted(Plan) {}

func (c *cancelAfterRound) ItemFinished(ItemResult, report.Snapshot) {
	c.mu.Lock()
	c.items++
	c.mu.Unlock()
}

func (c *cancelAfterRound) RoundFinished(Round) {
	c.rounds++
	c.cancel()
}

func TestRunInterruptedBetweenRounds(t *testing.T) {
	fx := newFixture(t)
	for i := range 6 {
		fx.addAsset(t, fmt.Sprintf("ep%02d.mp4", i), 10, false)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	obs := &cancelAfterRound{cancel: cancel}

	l := fx.loadLedger(t)
	runner, err := NewRunner(fx.scanner(), l, newFakeTranscriber(), Options{RoundSize: 2}, logging.NewNop(), WithObserver(obs), WithRunID("run-1"))
	if err != nil {
		t.Fatal(err)
	}
	res, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("interrupted run should not fail: %v", err)
	}
	if !res.Interrupted || !res.Summary.Interrupted {
		t.Fatal("expected interrupted result")
	}
	if res.RunID != "run-1" || res.Summary.RunID != "run-1" {
		t.Fatalf("run id not propagated: %q / %q", res.RunID, res.Summary.RunID)
	}
	if obs.rounds != 1 || obs.items != 2 {
		t.Fatalf("rounds=%d items=%d, want 1/2", obs.rounds, obs.items)
	}
	if res.Summary.Completed != 2 || res.Summary.Total != 6 {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}

	reloaded := fx.loadLedger(t)
	if reloaded.Len() != 2 {
		t.Fatalf("persisted ledger has %d entries, want 2", reloaded.Len())
	}
	if reloaded.Snapshot().CompletedAt != nil {
		t.Fatal("interrupted run must not stamp completion")
	}

	// A fresh process picks up exactly the items the interrupted run never reached.
	resumed := newFakeTranscriber()
	res, l = fx.run(t, resumed, Options{RoundSize: 2})
	if got := resumed.callCount("transcribe"); got != 4 {
		t.Fatalf("resume transcribed %d items, want 4", got)
	}
	for _, ev := range resumed.events {
		if ev.id == "ep00.mp4" || ev.id == "ep01.mp4" {
			t.Fatalf("resume reprocessed %s", ev.id)
		}
	}
	if l.Len() != 6 || !res.Summary.CorpusComplete {
		t.Fatalf("ledger=%d complete=%v after resume", l.Len(), res.Summary.CorpusComplete)
	}
}

func TestRunScanFailureIsFatal(t *testing.T) {
	fx := newFixture(t)
	missing := corpus.NewScanner(filepath.Join(fx.root, "nope"), corpus.Options{Extensions: []string{".mp4"}, SourceSuffix: sourceSuffix, TargetSuffix: targetSuffix})
	runner, err := NewRunner(missing, fx.loadLedger(t), newFakeTranscriber(), Options{}, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := runner.Run(context.Background()); err == nil {
		t.Fatal("expected error for unreadable corpus root")
	} else if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", err)
	}
}

func TestRunCancelledDuringScanIsInterrupted(t *testing.T) {
	fx := newFixture(t)
	fx.addAsset(t, "a.mp4", 10, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := newFakeTranscriber()
	l := fx.loadLedger(t)
	runner, err := NewRunner(fx.scanner(), l, tr, Options{}, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	res, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("cancelled scan should not be fatal: %v", err)
	}
	if !res.Interrupted || !res.Summary.Interrupted || res.State != StateDone {
		t.Fatalf("expected interrupted done result, got %+v", res)
	}
	if tr.callCount("transcribe") != 0 || len(res.Rounds) != 0 {
		t.Fatal("nothing should be dispatched after a cancelled scan")
	}
	if _, err := os.Stat(fx.ledgerPath); !os.IsNotExist(err) {
		t.Fatalf("ledger must not be written, stat err=%v", err)
	}
}

func TestNewRunnerValidation(t *testing.T) {
	fx := newFixture(t)
	if _, err := NewRunner(nil, fx.loadLedger(t), newFakeTranscriber(), Options{}, nil); err == nil {
		t.Fatal("expected error for nil scanner")
	}
	if _, err := NewRunner(fx.scanner(), fx.loadLedger(t), nil, Options{}, nil); err == nil {
		t.Fatal("expected error for nil transcriber")
	}
	if _, err := NewRunner(fx.scanner(), fx.loadLedger(t), nil, Options{DryRun: true}, nil); err != nil {
		t.Fatalf("dry run should not need a transcriber: %v", err)
	}
}

func TestPartition(t *testing.T) {
	items := make([]corpus.WorkItem, 5)
	tests := []struct {
		size int
		want string
	}{
		{size: 2, want: "[2 2 1]"},
		{size: 5, want: "[5]"},
		{size: 10, want: "[5]"},
		{size: 0, want: "[5]"},
	}
	for _, tt := range tests {
		var sizes []int
		for _, r := range partition(items, tt.size) {
			sizes = append(sizes, len(r))
		}
		if got := fmt.Sprint(sizes); got != tt.want {
			t.Errorf("partition size %d = %s, want %s", tt.size, got, tt.want)
		}
	}
	if got := partition(nil, 3); len(got) != 0 {
		t.Fatalf("expected no rounds for empty input, got %d", len(got))
	}
}
