package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"cuebatch/internal/batch"
	"cuebatch/internal/config"
	"cuebatch/internal/report"
	"cuebatch/internal/services"
)

// runProgress prints the plan and cost estimate when a run starts and then
// drives a progress bar on terminals, or one line per round elsewhere.
type runProgress struct {
	out      io.Writer
	barOut   io.Writer
	useBar   bool
	estimate func(int) report.Estimate

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newRunProgress(cmd *cobra.Command, cfg *config.Config, jsonOut bool) *runProgress {
	out := cmd.OutOrStdout()
	if jsonOut {
		out = cmd.ErrOrStderr()
	}
	return &runProgress{
		out:      out,
		barOut:   cmd.ErrOrStderr(),
		useBar:   isTerminal(cmd.ErrOrStderr()),
		estimate: estimator(cfg),
	}
}

func estimator(cfg *config.Config) func(int) report.Estimate {
	return func(n int) report.Estimate {
		return report.EstimateCost(n, cfg.Transcription.AverageMinutesPerAsset, cfg.Transcription.CostPerMinute)
	}
}

func (p *runProgress) RunStarted(plan batch.Plan) {
	fmt.Fprintf(p.out, "Found %s assets: %s complete, %s pending, %s selected\n",
		humanize.Comma(int64(plan.Discovered)),
		humanize.Comma(int64(plan.Complete)),
		humanize.Comma(int64(plan.Pending)),
		humanize.Comma(int64(len(plan.Selected))),
	)
	if len(plan.Evicted) > 0 {
		fmt.Fprintf(p.out, "Re-queued %d ledger entries with missing subtitles\n", len(plan.Evicted))
	}
	if len(plan.Selected) == 0 {
		return
	}
	fmt.Fprintf(p.out, "Estimated usage: %s\n", p.estimate(len(plan.Selected)))

	if !p.useBar {
		return
	}
	p.mu.Lock()
	p.bar = progressbar.NewOptions(len(plan.Selected),
		progressbar.OptionSetWriter(p.barOut),
		progressbar.OptionSetDescription("transcribing"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	p.mu.Unlock()
}

func (p *runProgress) ItemFinished(batch.ItemResult, report.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

func (p *runProgress) RoundFinished(round batch.Round) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Describe(fmt.Sprintf("round %d done", round.Index))
		return
	}
	var failed, skipped int
	for _, res := range round.Results {
		switch {
		case res.Outcome == services.OutcomeSuccess:
		case res.Outcome.Skipped():
			skipped++
		default:
			failed++
		}
	}
	fmt.Fprintf(p.out, "Round %d finished: %d items, %d failed, %d skipped\n", round.Index, len(round.Results), failed, skipped)
}

func (p *runProgress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}

type dryRunOutput struct {
	Discovered int      `json:"discovered"`
	Complete   int      `json:"complete"`
	Pending    int      `json:"pending"`
	Selected   []string `json:"selected"`
	Evicted    []string `json:"evicted,omitempty"`
	Backfill   int      `json:"backfill,omitempty"`
	Minutes    float64  `json:"estimatedMinutes"`
	Cost       float64  `json:"estimatedCost"`
}

func printDryRun(cmd *cobra.Command, cfg *config.Config, plan batch.Plan, jsonOut bool) error {
	estimate := estimator(cfg)(len(plan.Selected))
	ids := make([]string, 0, len(plan.Selected))
	for _, item := range plan.Selected {
		ids = append(ids, item.RelativeID)
	}

	if jsonOut {
		return writeJSON(cmd, dryRunOutput{
			Discovered: plan.Discovered,
			Complete:   plan.Complete,
			Pending:    plan.Pending,
			Selected:   ids,
			Evicted:    plan.Evicted,
			Backfill:   plan.Backfilled,
			Minutes:    estimate.Minutes,
			Cost:       estimate.Cost,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Dry run: %d of %d pending items would be processed\n", len(ids), plan.Pending)
	for i, id := range ids {
		if i == dryRunPreview {
			fmt.Fprintf(out, "  ... and %d more\n", len(ids)-dryRunPreview)
			break
		}
		fmt.Fprintf(out, "  %s\n", id)
	}
	if len(plan.Evicted) > 0 {
		fmt.Fprintf(out, "%d ledger entries would be re-queued (missing subtitles)\n", len(plan.Evicted))
	}
	if plan.Backfilled > 0 {
		fmt.Fprintf(out, "%d items with existing subtitles would be added to the ledger\n", plan.Backfilled)
	}
	fmt.Fprintf(out, "Estimated usage: %s\n", estimate)
	return nil
}

func printRunSummary(cmd *cobra.Command, cfg *config.Config, result batch.Result, logPath string) {
	out := cmd.OutOrStdout()
	s := result.Summary
	if s.Total == 0 && !s.Interrupted {
		fmt.Fprintln(out, "Nothing to do: every asset already has subtitles")
		return
	}

	pairs := [][2]string{
		{"Run", s.RunID},
		{"Completed", humanize.Comma(int64(s.Completed))},
		{"Failed", humanize.Comma(int64(s.Failed))},
		{"Skipped", humanize.Comma(int64(s.Skipped))},
		{"Total", humanize.Comma(int64(s.Total))},
		{"Success rate", fmt.Sprintf("%.1f%%", s.SuccessRate)},
		{"Duration", s.Duration},
	}
	if s.Evicted > 0 {
		pairs = append(pairs, [2]string{"Re-queued", humanize.Comma(int64(s.Evicted))})
	}
	if s.Backfilled > 0 {
		pairs = append(pairs, [2]string{"Backfilled", humanize.Comma(int64(s.Backfilled))})
	}
	pairs = append(pairs, [2]string{"Corpus complete", yesNo(s.CorpusComplete)})
	fmt.Fprintln(out, renderPairs("Run summary", pairs))

	if len(s.Errors) > 0 {
		rows := make([][]string, 0, len(s.Errors))
		for _, e := range s.Errors {
			rows = append(rows, []string{e.Item, string(e.Outcome), truncate(e.Message, 80)})
		}
		fmt.Fprintln(out, renderTable("Problems", []column{{title: "Item"}, {title: "Outcome"}, {title: "Message"}}, rows))
		if s.ErrorsOmitted > 0 {
			fmt.Fprintf(out, "... and %d more (see the log file)\n", s.ErrorsOmitted)
		}
	}
	if cfg.Paths.ReportPath != "" {
		fmt.Fprintf(out, "Report: %s\n", cfg.Paths.ReportPath)
	}
	if logPath != "" {
		fmt.Fprintf(out, "Log: %s\n", logPath)
	}
}

// truncate shortens value to limit display columns without splitting a
// multi-byte character.
func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 3 || text.RuneWidthWithoutEscSequences(value) <= limit {
		return value
	}
	return text.Trim(value, limit-3) + "..."
}
