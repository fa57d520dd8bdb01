package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cuebatch/internal/fileutil"
	"cuebatch/internal/history"
	"cuebatch/internal/report"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit, minFailures int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ok, _ := fileutil.Exists(cfg.Paths.HistoryPath); !ok {
				if jsonOut {
					return writeJSON(cmd, []history.Run{})
				}
				fmt.Fprintln(out, "No runs recorded yet")
				return nil
			}

			store, err := history.Open(cmd.Context(), cfg.Paths.HistoryPath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			var failures map[string]int
			if minFailures > 0 {
				if failures, err = store.FailureCounts(cmd.Context(), minFailures); err != nil {
					return err
				}
			}

			if jsonOut {
				if minFailures > 0 {
					return writeJSON(cmd, map[string]any{"runs": nonNilRuns(runs), "failures": failures})
				}
				return writeJSON(cmd, nonNilRuns(runs))
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet")
			} else {
				fmt.Fprintln(out, renderTable("", historyColumns, historyRows(runs)))
			}
			if minFailures > 0 {
				printFailures(cmd, failures, minFailures)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show (0 for all)")
	cmd.Flags().IntVar(&minFailures, "failures", 0, "Also list items that failed in at least N runs")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print runs as JSON")
	return cmd
}

var historyColumns = []column{
	{title: "Run"},
	{title: "Started"},
	{title: "Duration", numeric: true},
	{title: "Total", numeric: true},
	{title: "Done", numeric: true},
	{title: "Failed", numeric: true},
	{title: "Skipped", numeric: true},
	{title: "Success", numeric: true},
	{title: "Notes"},
}

func historyRows(runs []history.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		notes := ""
		switch {
		case run.Interrupted:
			notes = "interrupted"
		case run.CorpusComplete:
			notes = "corpus complete"
		}
		rows = append(rows, []string{
			shortID(run.RunID),
			run.StartedAt.Local().Format(time.DateTime),
			report.FormatMinutes(time.Duration(run.DurationSeconds * float64(time.Second))),
			strconv.Itoa(run.Total),
			strconv.Itoa(run.Completed),
			strconv.Itoa(run.Failed),
			strconv.Itoa(run.Skipped),
			fmt.Sprintf("%.1f%%", run.SuccessRate),
			notes,
		})
	}
	return rows
}

func printFailures(cmd *cobra.Command, failures map[string]int, minFailures int) {
	out := cmd.OutOrStdout()
	if len(failures) == 0 {
		fmt.Fprintf(out, "No items failed in %d or more runs\n", minFailures)
		return
	}
	ids := make([]string, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if failures[ids[i]] != failures[ids[j]] {
			return failures[ids[i]] > failures[ids[j]]
		}
		return ids[i] < ids[j]
	})
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []string{id, humanize.Comma(int64(failures[id]))})
	}
	fmt.Fprintln(out, renderTable("Repeated failures", []column{{title: "Item"}, {title: "Runs", numeric: true}}, rows))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func nonNilRuns(runs []history.Run) []history.Run {
	if runs == nil {
		return []history.Run{}
	}
	return runs
}
