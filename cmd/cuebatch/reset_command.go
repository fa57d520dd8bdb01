package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cuebatch/internal/ledger"
)

func newResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete the progress ledger so the next run rechecks every item",
		Long: `Delete the progress ledger. Items that already have both subtitle files are
re-added to the ledger on the next run without calling the API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.Paths.LedgerPath

			lock, err := ledger.AcquireRunLock(path)
			if err != nil {
				if errors.Is(err, ledger.ErrLocked) {
					return fmt.Errorf("a run is in progress; refusing to reset %s", path)
				}
				return err
			}
			defer func() { _ = lock.Release() }()

			removed, err := ledger.Remove(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if removed {
				fmt.Fprintf(out, "Removed ledger %s\n", path)
			} else {
				fmt.Fprintf(out, "No ledger at %s\n", path)
			}
			return nil
		},
	}
}
