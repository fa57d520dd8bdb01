package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cuebatch/internal/config"
	"cuebatch/internal/fileutil"
	"cuebatch/internal/history"
	"cuebatch/internal/ledger"
	"cuebatch/internal/logging"
	"cuebatch/internal/preflight"
	"cuebatch/internal/subtitles"
)

const statusRecentIDs = 10

type statusReport struct {
	LedgerPath   string             `json:"ledgerPath"`
	Completed    int                `json:"completed"`
	CompletedAt  *time.Time         `json:"completedAt,omitempty"`
	UpdatedAt    *time.Time         `json:"updatedAt,omitempty"`
	Recent       []string           `json:"recent"`
	LockHeld     bool               `json:"lockHeld"`
	LastRun      *history.Run       `json:"lastRun,omitempty"`
	Checks       []preflight.Result `json:"checks"`
	Verification *verifyReport      `json:"verification,omitempty"`
}

type verifyReport struct {
	Checked  int               `json:"checked"`
	Valid    int               `json:"valid"`
	Problems []artifactProblem `json:"problems,omitempty"`
}

type artifactProblem struct {
	Item  string `json:"item"`
	Path  string `json:"path"`
	Issue string `json:"issue"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var verify, jsonOut, checkAPI bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show ledger progress, lock state, and the last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := collectStatus(cmd, cfg, verify, checkAPI)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}
			printStatus(cmd, status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "Parse every ledgered item's subtitle files")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print status as JSON")
	cmd.Flags().BoolVar(&checkAPI, "check-api", false, "Probe the transcription API")
	return cmd
}

func collectStatus(cmd *cobra.Command, cfg *config.Config, verify, checkAPI bool) (statusReport, error) {
	l, err := ledger.Load(cfg.Paths.LedgerPath, logging.NewNop())
	if err != nil {
		return statusReport{}, err
	}
	snap := l.Snapshot()
	status := statusReport{
		LedgerPath:  cfg.Paths.LedgerPath,
		Completed:   len(snap.CompletedIDs),
		CompletedAt: snap.CompletedAt,
		UpdatedAt:   snap.UpdatedAt,
		Recent:      lastN(snap.CompletedIDs, statusRecentIDs),
	}

	if status.LockHeld, err = ledger.Held(cfg.Paths.LedgerPath); err != nil {
		return statusReport{}, err
	}

	if ok, _ := fileutil.Exists(cfg.Paths.HistoryPath); ok {
		store, err := history.Open(cmd.Context(), cfg.Paths.HistoryPath)
		if err != nil {
			return statusReport{}, err
		}
		status.LastRun, err = store.Latest(cmd.Context())
		_ = store.Close()
		if err != nil {
			return statusReport{}, err
		}
	}

	status.Checks = preflight.RunAll(cmd.Context(), cfg, preflight.Options{Network: checkAPI})

	if verify {
		v := verifyArtifacts(cfg, snap.CompletedIDs)
		status.Verification = &v
	}
	return status, nil
}

// verifyArtifacts structurally checks both subtitle files of each ledgered item.
func verifyArtifacts(cfg *config.Config, ids []string) verifyReport {
	scanner := newScanner(cfg)
	result := verifyReport{Checked: len(ids)}
	for _, id := range ids {
		asset := filepath.Join(cfg.Paths.CorpusDir, filepath.FromSlash(id))
		valid := true
		for _, path := range scanner.ArtifactPaths(asset) {
			for _, issue := range subtitles.ValidateFile(path) {
				valid = false
				result.Problems = append(result.Problems, artifactProblem{Item: id, Path: path, Issue: issue})
			}
		}
		if valid {
			result.Valid++
		}
	}
	return result
}

func printStatus(cmd *cobra.Command, status statusReport) {
	out := cmd.OutOrStdout()
	colorize := isTerminal(out)

	fmt.Fprintln(out, renderSectionHeader("Progress", colorize))
	fmt.Fprintln(out, renderStatusLine("Ledger", statusInfo, status.LedgerPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Completed", statusInfo, humanize.Comma(int64(status.Completed))+" items", colorize))
	if status.CompletedAt != nil {
		fmt.Fprintln(out, renderStatusLine("Corpus complete", statusOK, formatStamp(*status.CompletedAt), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Corpus complete", statusInfo, "not yet", colorize))
	}
	if status.UpdatedAt != nil {
		fmt.Fprintln(out, renderStatusLine("Last update", statusInfo, formatStamp(*status.UpdatedAt), colorize))
	}
	if status.LockHeld {
		fmt.Fprintln(out, renderStatusLine("Run in progress", statusWarn, "yes", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Run in progress", statusInfo, "no", colorize))
	}
	for _, id := range status.Recent {
		fmt.Fprintf(out, "%s  %s\n", statusIndent, id)
	}

	if run := status.LastRun; run != nil {
		fmt.Fprintln(out, renderSectionHeader("Last run", colorize))
		kind := statusOK
		switch {
		case run.Interrupted:
			kind = statusWarn
		case run.Failed > 0:
			kind = statusError
		}
		msg := fmt.Sprintf("%s: %d/%d completed, %d failed, %d skipped (%.1f%%)",
			humanize.Time(run.StartedAt), run.Completed, run.Total, run.Failed, run.Skipped, run.SuccessRate)
		fmt.Fprintln(out, renderStatusLine(run.RunID, kind, msg, colorize))
	}

	fmt.Fprintln(out, renderSectionHeader("Checks", colorize))
	for _, check := range status.Checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}

	if v := status.Verification; v != nil {
		fmt.Fprintln(out, renderSectionHeader("Verification", colorize))
		kind := statusOK
		if len(v.Problems) > 0 {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine("Subtitle files", kind, fmt.Sprintf("%d of %d items valid", v.Valid, v.Checked), colorize))
		if len(v.Problems) > 0 {
			rows := make([][]string, 0, len(v.Problems))
			for _, p := range v.Problems {
				rows = append(rows, []string{p.Item, filepath.Base(p.Path), p.Issue})
			}
			fmt.Fprintln(out, renderTable("", []column{{title: "Item"}, {title: "File"}, {title: "Issue"}}, rows))
		}
	}
}

func formatStamp(t time.Time) string {
	return fmt.Sprintf("%s (%s)", t.Local().Format(time.DateTime), humanize.Time(t))
}

func lastN(ids []string, n int) []string {
	if len(ids) <= n {
		return append([]string{}, ids...)
	}
	return append([]string{}, ids[len(ids)-n:]...)
}
